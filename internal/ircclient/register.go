package ircclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"maskwatch/internal/config"
)

// Numerics consulted directly by this package (registration, oper-up, and
// the command dispatcher's synchronous WHOIS lookup). Named per their
// RFC/ircd meaning, not renumbered.
const (
	RplWelcome        = "001"
	RplYoureOper      = "381"
	RplWhoisOperator  = "313"
	RplEndOfWhois     = "318"
	RplLoggedIn       = "900"
	RplSaslSuccess    = "903"
	ErrSaslFail       = "904"
	ErrSaslAbort      = "906"
	RplRSAChallenge2  = "740"
	RplEndOfRSAChall2 = "741"

	registrationTimeoutMsg = "registration timed out waiting for %s"
)

// Register runs PASS/CAP/NICK/USER and, if cfg.SASL.Username is set, a
// SASL PLAIN exchange, blocking until RPL_WELCOME (numeric 001) or ctx is
// canceled. Mirrors the original's synchronous pre-WELCOME setup.
func (c *Client) Register(ctx context.Context, cfg *config.Config) error {
	if cfg.Password != "" {
		if err := c.Send("PASS", cfg.Password); err != nil {
			return err
		}
	}

	useSASL := cfg.SASL.Username != ""
	if useSASL {
		if err := c.Send("CAP", "REQ", "sasl"); err != nil {
			return err
		}
		ack, err := c.WaitFor(ctx, CommandIs("CAP"))
		if err != nil {
			return fmt.Errorf("ircclient: waiting for CAP ACK: %w", err)
		}
		if len(ack.Params) < 2 || ack.Params[1] != "ACK" {
			return fmt.Errorf("ircclient: server rejected sasl capability request")
		}
		if err := c.authenticatePlain(ctx, cfg.SASL.Username, cfg.SASL.Password); err != nil {
			return err
		}
		if err := c.Send("CAP", "END"); err != nil {
			return err
		}
	}

	if err := c.Send("NICK", cfg.Nickname); err != nil {
		return err
	}
	if err := c.Send("USER", cfg.Username, "0", "*", cfg.Realname); err != nil {
		return err
	}

	welcome, err := c.WaitFor(ctx, Numeric(RplWelcome))
	if err != nil {
		return fmt.Errorf(registrationTimeoutMsg, "RPL_WELCOME")
	}
	if len(welcome.Params) > 0 {
		c.SetNick(welcome.Params[0])
	}
	return nil
}

func (c *Client) authenticatePlain(ctx context.Context, username, password string) error {
	if err := c.Send("AUTHENTICATE", "PLAIN"); err != nil {
		return err
	}
	if _, err := c.WaitFor(ctx, CommandIs("AUTHENTICATE")); err != nil {
		return fmt.Errorf("ircclient: waiting for AUTHENTICATE +: %w", err)
	}

	payload := []byte(username + "\x00" + username + "\x00" + password)
	encoded := base64.StdEncoding.EncodeToString(payload)
	if err := c.SendRaw(buildLine("AUTHENTICATE", encoded)); err != nil {
		return err
	}

	result, err := c.WaitFor(ctx, Numeric(RplSaslSuccess), Numeric(RplLoggedIn), Numeric(ErrSaslFail), Numeric(ErrSaslAbort))
	if err != nil {
		return fmt.Errorf("ircclient: waiting for SASL result: %w", err)
	}
	if result.Command == ErrSaslFail || result.Command == ErrSaslAbort {
		return fmt.Errorf("ircclient: SASL PLAIN authentication failed")
	}
	return nil
}
