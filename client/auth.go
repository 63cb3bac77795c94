package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	imap "github.com/quietloop/imapc"
)

// Login authenticates with a plaintext username and password via the
// LOGIN command. The password is always sent as a quoted string.
func (c *Client) Login(ctx context.Context, username, password string) error {
	quotedPassword := `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(password) + `"`
	data := c.buildArgs(imap.CommandLogin, imap.QuoteArg(username), quotedPassword)
	_, _, err := c.dispatchSync(imap.CommandLogin, data, nil)
	if err != nil {
		return err
	}
	c.setState(imap.ConnStateAuthenticated)
	return nil
}

// Authenticate runs mech over AUTHENTICATE. SASL-IR (the initial response
// optimization) is used automatically when the server advertises it.
//
// The exchange is driven by a Producer: each server continuation is
// base64-decoded and handed to mech.Next, and the (possibly empty) reply
// is base64-encoded back onto the wire. A mechanism that errors out
// sends the cancellation response ("*") instead of aborting the
// connection -- only the command fails.
func (c *Client) Authenticate(ctx context.Context, mech sasl.Client) error {
	name, ir, err := mech.Start()
	if err != nil {
		return fmt.Errorf("imapc: sasl start: %w", err)
	}

	useIR := ir != nil && c.HasCap(imap.CapSASLIR)
	args := []string{name}
	if useIR {
		args = append(args, string(encodeSASL(ir)))
	}
	data := c.buildArgs(imap.CommandAuthenticate, args...)

	pendingIR := ir
	if useIR {
		pendingIR = nil
	}

	producer := func(contText string) ([]byte, bool, error) {
		if pendingIR != nil {
			reply := pendingIR
			pendingIR = nil
			return append(encodeSASL(reply), '\r', '\n'), false, nil
		}
		challenge, err := base64.StdEncoding.DecodeString(contText)
		if err != nil {
			return nil, false, fmt.Errorf("imapc: decoding sasl challenge: %w", err)
		}
		resp, err := mech.Next(challenge)
		if err != nil {
			return nil, false, err
		}
		return append(encodeSASL(resp), '\r', '\n'), false, nil
	}

	_, _, err = c.dispatchSync(imap.CommandAuthenticate, data, producer)
	if err != nil {
		return err
	}
	c.setState(imap.ConnStateAuthenticated)
	return nil
}

func encodeSASL(b []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out
}

// AuthenticatePlain is a convenience wrapper for the common PLAIN mechanism.
func (c *Client) AuthenticatePlain(ctx context.Context, identity, username, password string) error {
	return c.Authenticate(ctx, sasl.NewPlainClient(identity, username, password))
}

// AuthenticateLogin is a convenience wrapper for the LOGIN SASL mechanism
// (distinct from the LOGIN command), retained for servers that require
// SASL negotiation even for plain credentials.
func (c *Client) AuthenticateLogin(ctx context.Context, username, password string) error {
	return c.Authenticate(ctx, sasl.NewLoginClient(username, password))
}

// AuthenticateCRAMMD5 is a convenience wrapper for CRAM-MD5.
func (c *Client) AuthenticateCRAMMD5(ctx context.Context, username, secret string) error {
	return c.Authenticate(ctx, sasl.NewCramMD5Client(username, secret))
}

// AuthenticateOAuthBearer is a convenience wrapper for RFC 7628 OAUTHBEARER.
func (c *Client) AuthenticateOAuthBearer(ctx context.Context, username, token, host string, port int) error {
	return c.Authenticate(ctx, sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: username,
		Token:    token,
		Host:     host,
		Port:     port,
	}))
}

// AuthenticateXOAuth2 is a convenience wrapper for the legacy XOAUTH2 mechanism.
func (c *Client) AuthenticateXOAuth2(ctx context.Context, username, token string) error {
	return c.Authenticate(ctx, sasl.NewXoauth2Client(username, token))
}

// AuthenticateExternal is a convenience wrapper for SASL EXTERNAL, used
// when the TLS client certificate alone identifies the user.
func (c *Client) AuthenticateExternal(ctx context.Context, identity string) error {
	return c.Authenticate(ctx, sasl.NewExternalClient(identity))
}

// AuthenticateAnonymous is a convenience wrapper for SASL ANONYMOUS.
func (c *Client) AuthenticateAnonymous(ctx context.Context, trace string) error {
	return c.Authenticate(ctx, sasl.NewAnonymousClient(trace))
}

// Logout sends LOGOUT, transitions to the logout state, and closes the
// underlying connection.
func (c *Client) Logout(ctx context.Context) error {
	data := c.buildSimple(imap.CommandLogout)
	c.setState(imap.ConnStateLogout)
	_, _, err := c.dispatchSync(imap.CommandLogout, data, nil)
	closeErr := c.transport.Close()
	c.terminate(imap.NewAbortError("logged out", nil))
	if err != nil {
		return err
	}
	return closeErr
}
