// Package engine wires the mask compiler, catalog, active set, observer
// pipeline, matcher, dispatcher and command layer into the single-actor
// run loop described by spec §5: one goroutine, one select, no
// cross-task shared-memory mutation outside it.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maskwatch/internal/command"
	"maskwatch/internal/config"
	"maskwatch/internal/dispatch"
	"maskwatch/internal/identity"
	"maskwatch/internal/ircclient"
	"maskwatch/internal/logger"
	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/matcher"
	"maskwatch/internal/metrics"
	"maskwatch/internal/observer"
	"maskwatch/internal/ring"
	"maskwatch/internal/scheduler"
	"maskwatch/internal/store"
)

const (
	sendDrainInterval     = 100 * time.Millisecond
	checkDebounceInterval = 100 * time.Millisecond
	checkDebounceDelay    = 3 * time.Second
	whoisTimeout          = 10 * time.Second

	numericWhoisAccount = "330"
	numericWhoisSecure  = "671"
)

// Engine is one connected, registered session driving the mask
// enforcement pipeline.
type Engine struct {
	cfg      *config.Config
	client   *ircclient.Client
	catalog  *store.Catalog
	set      *maskset.Set
	recent   *ring.Ring
	pipeline *observer.Pipeline
	enricher *identity.Enricher
	delayed  *scheduler.DelayedSend
	cmdCtx   *command.Context
	metrics  *metrics.Metrics
	log      *logger.Logger

	pendingChecks []observer.PendingCheck
}

// New builds an Engine around an already-dialed, registered client. set is
// shared with the management API so /status reflects the live active-mask
// count across reconnects; New only reads and rebuilds it, never replaces
// the pointer.
func New(cfg *config.Config, client *ircclient.Client, catalog *store.Catalog, set *maskset.Set, m *metrics.Metrics, log *logger.Logger) (*Engine, error) {
	pipeline, err := observer.NewPipeline(cfg.CliConnRe, cfg.CliExitRe, cfg.CliNickRe)
	if err != nil {
		return nil, fmt.Errorf("engine: compile observer patterns: %w", err)
	}
	pipeline.OnIdentityQuery(func(nick string) {
		if err := client.Send("WHOIS", nick); err != nil {
			log.Errorf("identity_query", "%v", err)
		}
	})

	e := &Engine{
		cfg:     cfg,
		client:  client,
		catalog: catalog,
		set:     set,
		recent:  ring.New(cfg.History),
		delayed: scheduler.NewDelayedSend(),
		metrics: m,
		log:     log,
	}
	e.pipeline = pipeline
	e.enricher = identity.New(pipeline, e.runCheck)
	e.cmdCtx = &command.Context{
		Catalog:        catalog,
		Set:            e.set,
		Recent:         e.recent,
		Compiled:       mask.NewCompileCache(256),
		BanCmdTemplate: cfg.BanCmd,
	}
	return e, nil
}

// Run drives the event loop until ctx is canceled or the connection drops.
func (e *Engine) Run(ctx context.Context) error {
	sendTicker := time.NewTicker(sendDrainInterval)
	defer sendTicker.Stop()
	debounceTicker := time.NewTicker(checkDebounceInterval)
	defer debounceTicker.Stop()
	expiryTimer := time.NewTimer(0)
	defer expiryTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-e.client.Lines():
			if !ok {
				err := <-e.client.ReadErr()
				return fmt.Errorf("engine: connection lost: %w", err)
			}
			e.handleLine(ctx, line)

		case now := <-sendTicker.C:
			for _, cmd := range e.delayed.Drain(now) {
				if err := e.client.SendRaw(cmd); err != nil {
					e.log.Errorf("send_drain", "%v", err)
				}
			}

		case now := <-debounceTicker.C:
			e.pendingChecks = append(e.pendingChecks, e.pipeline.TakePending()...)
			var ready []observer.PendingCheck
			ready, e.pendingChecks = scheduler.DebounceReady(e.pendingChecks, now, checkDebounceDelay)
			for _, pc := range ready {
				e.runCheck(pc.Nick, pc.User, pc.Event)
			}

		case now := <-expiryTimer.C:
			result, err := scheduler.RunExpiry(e.set, e.catalog, now, e.systemActor())
			if err != nil {
				e.log.Errorf("expiry", "%v", err)
			}
			for _, rl := range result.ReportLines {
				if strings.HasSuffix(rl, "-> WARN") {
					e.metrics.ExpiryDowngrades.Add(1)
				} else {
					e.metrics.ExpiryDisables.Add(1)
				}
				e.reportLine(rl, false, false)
			}
			expiryTimer.Reset(result.NextWake)
		}
	}
}

func (e *Engine) systemActor() store.Actor {
	return store.Actor{Source: e.client.Nickname() + "!" + e.cfg.Username + "@maskwatch"}
}

func (e *Engine) handleLine(ctx context.Context, line ircclient.Line) {
	switch line.Command {
	case ircclient.RplWelcome:
		e.onWelcome(ctx)
	case ircclient.RplYoureOper:
		e.onYoureOper()
	case numericWhoisAccount:
		if len(line.Params) >= 3 {
			e.enricher.Account(line.Params[1], line.Params[2])
		}
	case numericWhoisSecure:
		if len(line.Params) >= 2 {
			e.enricher.Secure(line.Params[1])
		}
	case ircclient.RplEndOfWhois:
		if len(line.Params) >= 2 {
			e.enricher.EndOfWhois(line.Params[1])
		}
	case "PRIVMSG":
		e.handlePrivmsg(ctx, line)
	case "NOTICE":
		e.handleServerLine(line)
	case "PING":
		if len(line.Params) > 0 {
			if err := e.client.Send("PONG", line.Params[0]); err != nil {
				e.log.Errorf("pong", "%v", err)
			}
		}
	}
}

// onWelcome clears and reloads the active set from the durable catalog,
// then opers up, per §6.1.
func (e *Engine) onWelcome(ctx context.Context) {
	rows, err := e.catalog.ListEnabled()
	if err != nil {
		e.log.Errorf("catalog_load", "%v", err)
		return
	}
	for _, cerr := range e.set.Rebuild(rows) {
		e.log.Warnf("mask_compile", "%v", cerr)
	}
	e.log.Infof("active_set", "loaded %d active masks", e.set.Len())

	if e.cfg.Oper.Name != "" {
		if err := e.client.OperUp(ctx, e.cfg.Oper); err != nil {
			e.log.Errorf("oper_up", "%v", err)
		}
	}
}

// onYoureOper applies the configured snomask/umode and joins the
// operator channel(s).
func (e *Engine) onYoureOper() {
	if e.cfg.Umode != "" {
		if err := e.client.SetUmode(e.cfg.Umode); err != nil {
			e.log.Errorf("umode", "%v", err)
		}
	}
	if e.cfg.Channel != "" {
		if err := e.client.Join(e.cfg.Channel); err != nil {
			e.log.Errorf("join", "%v", err)
		}
	}
	if e.cfg.Verbose != "" && e.cfg.Verbose != e.cfg.Channel {
		if err := e.client.Join(e.cfg.Verbose); err != nil {
			e.log.Errorf("join", "%v", err)
		}
	}
}

// handleServerLine feeds a NOTICE body through the cliconn/cliexit/clinick
// patterns (§4.E).
func (e *Engine) handleServerLine(line ircclient.Line) {
	if len(line.Params) == 0 {
		return
	}
	text := line.Params[len(line.Params)-1]
	e.pipeline.Line(text, time.Now().Unix())
}

// handlePrivmsg answers an operator PM: verifies the sender is an oper via
// a synchronous WHOIS (§4.K), then dispatches the command.
func (e *Engine) handlePrivmsg(ctx context.Context, line ircclient.Line) {
	if len(line.Params) < 2 {
		return
	}
	target, text := line.Params[0], line.Params[1]
	if !e.client.IsMe(target) {
		return
	}
	nick := ircclient.Nick(line.Source)

	operName, ok := e.verifyOperator(ctx, nick)
	if !ok {
		if err := e.client.Notice(nick, "you must be an IRC operator to use this command"); err != nil {
			e.log.Errorf("notice", "%v", err)
		}
		return
	}

	actor := store.Actor{Source: line.Source, Oper: operName}
	reply := command.Dispatch(e.cmdCtx, actor, time.Now(), text)
	for _, notice := range reply.Notices {
		if err := e.client.Notice(nick, notice); err != nil {
			e.log.Errorf("notice", "%v", err)
		}
	}
	if reply.Broadcast != "" {
		e.reportLine(reply.Broadcast, false, false)
	}
}

// verifyOperator issues a synchronous WHOIS for nick and reports whether
// the RPL_WHOISOPERATOR line names an operator, per spec §4.K.
func (e *Engine) verifyOperator(ctx context.Context, nick string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, whoisTimeout)
	defer cancel()

	if err := e.client.Send("WHOIS", nick); err != nil {
		return "", false
	}
	self := e.client.Nickname()
	line, err := e.client.WaitFor(ctx,
		ircclient.NumericTo(ircclient.RplWhoisOperator, self),
		ircclient.NumericTo(ircclient.RplEndOfWhois, self),
	)
	if err != nil || line.Command == ircclient.RplEndOfWhois || len(line.Params) < 3 {
		return "", false
	}
	return command.ParseOperName(line.Params[2])
}

// runCheck is the identity.Checker callback, also invoked directly for
// debounce-ready connect checks.
func (e *Engine) runCheck(nick string, u *observer.User, event observer.Event) {
	e.metrics.ObservationsTotal.Add(1)
	if event == observer.EventConnect {
		e.metrics.ObservationsConnect.Add(1)
	} else {
		e.metrics.ObservationsNick.Add(1)
	}

	start := time.Now()
	matched := matcher.Check(nick, u, event, e.set, e.recent)
	if len(matched) == 0 {
		return
	}
	e.metrics.MatchesTotal.Add(1)

	var rows []dispatch.Matched
	for _, id := range matched {
		if entry, ok := e.set.Get(id); ok {
			rows = append(rows, dispatch.Matched{ID: id, Row: entry.Row})
		}
	}
	target := dispatch.TargetFromUser(nick, u)

	decision, err := dispatch.Decide(target, rows, e.catalog, start, e.cfg.BanCmd)
	if err != nil {
		e.metrics.StoreErrors.Add(1)
		e.log.Errorf("dispatch", "%v", err)
		return
	}
	e.metrics.StoreWrites.Add(1)
	e.metrics.RecordMatchLatency(time.Since(start))
	e.metrics.DispatchCount(decision.Type.Action().String())

	if decision.Command != "" {
		if decision.Immediate {
			if err := e.client.SendRaw(decision.Command); err != nil {
				e.log.Errorf("dispatch_send", "%v", err)
			}
		} else {
			e.delayed.Schedule(decision.SendAt, decision.Command)
		}
	}
	if !decision.ExcludeOnly && decision.ReportLine != "" {
		e.reportLine(decision.ReportLine, decision.Quiet, decision.Silent)
	}
}

// reportLine routes a report line to the verbose and/or main operator
// channel per §4.H.9, deduplicating when they're the same channel.
func (e *Engine) reportLine(line string, quiet, silent bool) {
	if silent {
		return
	}
	if quiet {
		if e.cfg.Verbose != "" {
			if err := e.client.Notice(e.cfg.Verbose, line); err != nil {
				e.log.Errorf("report", "%v", err)
			}
		}
		return
	}
	sent := false
	if e.cfg.Verbose != "" {
		if err := e.client.Notice(e.cfg.Verbose, line); err != nil {
			e.log.Errorf("report", "%v", err)
		}
		sent = true
	}
	if e.cfg.Channel != "" && (!sent || e.cfg.Channel != e.cfg.Verbose) {
		if err := e.client.Notice(e.cfg.Channel, line); err != nil {
			e.log.Errorf("report", "%v", err)
		}
	}
}
