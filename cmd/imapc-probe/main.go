// Command imapc-probe dials a configured IMAP server and drives a short
// session over it -- logging the advertised capabilities, an optional
// STARTTLS, LOGIN, SELECT, an optional brief IDLE, and LOGOUT -- so a
// configured profile can be smoke-tested from the command line.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"
	"time"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/client"
	"github.com/quietloop/imapc/config"
	"github.com/quietloop/imapc/transport"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	profileName := flag.String("profile", "", "profile name to connect with")
	mailbox := flag.String("mailbox", "INBOX", "mailbox to select")
	idleFor := flag.Duration("idle", 0, "if set, issue IDLE and hold it for this long before DONE")
	debug := flag.Bool("debug", false, "set the client's DebugLog option (no wire-level log is produced)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *profileName == "" {
		logger.Error("-profile is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	profile, ok := cfg.Lookup(*profileName)
	if !ok {
		logger.Error("no such profile", "profile", *profileName)
		os.Exit(1)
	}

	if err := run(logger, profile, *mailbox, *idleFor, *debug); err != nil {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, profile config.Profile, mailbox string, idleFor time.Duration, debug bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var t transport.Transport
	var err error
	switch {
	case profile.TLS:
		t, err = transport.DialTLS(ctx, profile.Addr(), &tls.Config{ServerName: profile.Host})
	default:
		t, err = transport.DialPlain(ctx, profile.Addr())
	}
	if err != nil {
		return err
	}

	opts := []client.Option{client.WithLogger(logger), client.WithDebugLog(debug)}
	if profile.IdleTimeout > 0 {
		opts = append(opts, client.WithIdleTimeout(profile.IdleTimeout))
	}

	c, err := client.New(ctx, t, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("connected", "caps", c.Caps())

	if profile.StartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: profile.Host}); err != nil {
			return err
		}
		logger.Info("upgraded to tls", "caps", c.Caps())
	}

	if err := login(ctx, c, profile); err != nil {
		return err
	}
	logger.Info("authenticated", "state", c.State())

	data, err := c.Select(mailbox, nil)
	if err != nil {
		return err
	}
	logger.Info("selected", "mailbox", mailbox, "messages", data.NumMessages, "recent", data.NumRecent, "uidnext", data.UIDNext)

	if idleFor > 0 {
		ic, err := c.Idle()
		if err != nil {
			return err
		}
		logger.Info("idling", "for", idleFor)
		time.Sleep(idleFor)
		if err := ic.Stop(); err != nil {
			return err
		}
		logger.Info("idle done")
	}

	return c.Logout(ctx)
}

func login(ctx context.Context, c *client.Client, profile config.Profile) error {
	switch profile.Mechanism {
	case "", "LOGIN":
		return c.Login(ctx, profile.Username, profile.Password)
	case "PLAIN":
		return c.AuthenticatePlain(ctx, "", profile.Username, profile.Password)
	case "CRAM-MD5":
		return c.AuthenticateCRAMMD5(ctx, profile.Username, profile.Password)
	case "XOAUTH2":
		return c.AuthenticateXOAuth2(ctx, profile.Username, profile.OAuthToken)
	case "OAUTHBEARER":
		return c.AuthenticateOAuthBearer(ctx, profile.Username, profile.OAuthToken, profile.Host, profile.Port)
	case "EXTERNAL":
		return c.AuthenticateExternal(ctx, profile.Username)
	default:
		return imap.NewProtocolError("imapc-probe: unknown mechanism "+profile.Mechanism, "")
	}
}
