package ircclient

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// pipeClient returns a Client wired to one end of a net.Pipe, and a
// bufio.Reader/io.Writer pair for the "server" side to drive the test.
func pipeClient(t *testing.T) (*Client, *bufio.Reader, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })
	c := newClient(clientConn, "bot")
	return c, bufio.NewReader(serverConn), serverConn
}

func serverSend(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func TestClient_Lines_ReceivesUnmatchedLine(t *testing.T) {
	c, _, serverConn := pipeClient(t)
	go serverSend(t, serverConn, ":irc.example.net PRIVMSG bot :hello")

	select {
	case l := <-c.Lines():
		if l.Command != "PRIVMSG" || len(l.Params) != 2 || l.Params[1] != "hello" {
			t.Errorf("got %+v", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestClient_WaitFor_ClaimsMatchingLine(t *testing.T) {
	c, _, serverConn := pipeClient(t)
	done := make(chan Line, 1)
	go func() {
		l, err := c.WaitFor(context.Background(), Numeric("001"))
		if err != nil {
			t.Error(err)
			return
		}
		done <- l
	}()

	// give WaitFor a moment to register before the line arrives
	time.Sleep(10 * time.Millisecond)
	go serverSend(t, serverConn, ":irc.example.net 001 bot :Welcome")

	select {
	case l := <-done:
		if l.Command != "001" {
			t.Errorf("got %+v", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WaitFor result")
	}

	select {
	case l := <-c.Lines():
		t.Errorf("expected claimed line not to also appear on Lines(), got %+v", l)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_WaitFor_ContextCancel(t *testing.T) {
	c, _, _ := pipeClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.WaitFor(ctx, Numeric("999"))
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestClient_Send_WritesCRLFLine(t *testing.T) {
	c, serverReader, _ := pipeClient(t)
	go c.Send("PRIVMSG", "#chan", "hello world")

	raw, err := serverReader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimRight(raw, "\r\n"); got != "PRIVMSG #chan :hello world" {
		t.Errorf("got %q", got)
	}
}

func TestClient_IsMe_and_SetNick(t *testing.T) {
	c, _, _ := pipeClient(t)
	if !c.IsMe("bot") || !c.IsMe("BOT") {
		t.Error("expected case-insensitive self match")
	}
	c.SetNick("newbot")
	if c.IsMe("bot") || !c.IsMe("newbot") {
		t.Error("expected nick update to take effect")
	}
}

func TestParseServer_TLSMarker(t *testing.T) {
	host, port, useTLS, err := parseServer("irc.example.net+6697")
	if err != nil || host != "irc.example.net" || port != "6697" || !useTLS {
		t.Errorf("got (%q, %q, %t, %v)", host, port, useTLS, err)
	}
}

func TestParseServer_Plaintext(t *testing.T) {
	host, port, useTLS, err := parseServer("irc.example.net:6667")
	if err != nil || host != "irc.example.net" || port != "6667" || useTLS {
		t.Errorf("got (%q, %q, %t, %v)", host, port, useTLS, err)
	}
}

func TestParseServer_Invalid(t *testing.T) {
	if _, _, _, err := parseServer("not-a-valid-address"); err == nil {
		t.Fatal("expected an error for an address with neither '+' nor ':'")
	}
}
