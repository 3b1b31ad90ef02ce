// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ariebrainware/campus-gateway/audit"
	"github.com/ariebrainware/campus-gateway/config"
	"github.com/ariebrainware/campus-gateway/middleware"
	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "campus-gateway",
		Usage: "request-time security gateway for the campus platform",
		Before: func(c *cli.Context) error {
			cfg := config.LoadConfig()
			_, err := util.InitLogger(util.LoggerOptions{Level: cfg.LogLevel, File: cfg.LogFile})
			return err
		},
		Action: serve,
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the HTTP server", Action: serve},
			{Name: "migrate", Usage: "create or update the gateway tables", Action: migrate},
			{
				Name:      "block-ip",
				Usage:     "block an IP address",
				ArgsUsage: "<ip>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Value: "blocked from the command line"},
					&cli.DurationFlag{Name: "duration", Usage: "block length, e.g. 24h", Value: 24 * time.Hour},
					&cli.BoolFlag{Name: "permanent", Usage: "block until unblocked"},
				},
				Action: blockIP,
			},
			{Name: "unblock-ip", Usage: "lift the block on an IP address", ArgsUsage: "<ip>", Action: unblockIP},
			{Name: "unlock-account", Usage: "clear the lockout on an account", ArgsUsage: "<user-id>", Action: unlockAccount},
			{
				Name:  "create-user",
				Usage: "create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"CREATE_USER_PASSWORD"}},
					&cli.StringFlag{Name: "role", Value: model.RoleStudent},
				},
				Action: createUser,
			},
			{
				Name:  "update-geoip",
				Usage: "download the GeoIP database to GEOIP_DB_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Required: true, EnvVars: []string{"GEOIP_DOWNLOAD_URL"}},
				},
				Action: updateGeoIP,
			},
			{
				Name:      "issue-token",
				Usage:     "sign an access token for an account",
				ArgsUsage: "<user-id>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: issueToken,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		util.Logger().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg := config.LoadConfig()
	s, err := newServices(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if nb, ok := s.bus.(interface{ Start() error }); ok {
		if err := nb.Start(); err != nil {
			return err
		}
	}
	if s.cfg.SignaturesFile != "" {
		if err := security.WatchSignatures(ctx, s.cfg.SignaturesFile, s.detect); err != nil {
			return fmt.Errorf("load signatures: %w", err)
		}
	}

	resolver, err := security.NewIdentityResolver(s.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.EndpointCallLogger())
	router.Use(middleware.IdentifyUser(resolver))
	router.Use(middleware.SecurityGateway(s.gateway))
	router.Use(middleware.SecureHeaders(s.cfg.SecureTransport))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DatabaseMiddleware(s.db))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.api.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		util.Logger().Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	util.Logger().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(*cli.Context) error {
	db, err := config.ConnectMySQL()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return err
	}
	util.Logger().Info("migration complete")
	return nil
}

// cliActor attributes command-line changes to the local operator.
var cliActor = security.Actor{IP: "127.0.0.1"}

func blockIP(c *cli.Context) error {
	ip := c.Args().First()
	if ip == "" {
		return cli.Exit("usage: campus-gateway block-ip <ip>", 2)
	}
	s, err := newServices(false)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.api.Reputation.Block(c.Context, security.BlockParams{
		IP:        ip,
		Reason:    c.String("reason"),
		Duration:  c.Duration("duration"),
		Permanent: c.Bool("permanent"),
	})
	if err != nil {
		return err
	}
	s.api.Recorder.Record(c.Context, audit.Entry{
		Type:     model.EventIPBlocked,
		Severity: model.SeverityMedium,
		IP:       cliActor.IP,
		Details:  map[string]interface{}{"blocked_ip": entry.IPAddress, "reason": entry.Reason, "source": "cli"},
	})
	if entry.IsPermanent {
		fmt.Fprintf(c.App.Writer, "blocked %s permanently\n", entry.IPAddress)
	} else {
		fmt.Fprintf(c.App.Writer, "blocked %s until %s\n", entry.IPAddress, entry.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func unblockIP(c *cli.Context) error {
	ip := c.Args().First()
	if ip == "" {
		return cli.Exit("usage: campus-gateway unblock-ip <ip>", 2)
	}
	s, err := newServices(false)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.api.Reputation.Unblock(c.Context, ip)
	if errors.Is(err, security.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("%s is not blocked", ip), 1)
	}
	if err != nil {
		return err
	}
	s.api.Recorder.Record(c.Context, audit.Entry{
		Type:     model.EventIPUnblocked,
		Severity: model.SeverityMedium,
		IP:       cliActor.IP,
		Details:  map[string]interface{}{"unblocked_ip": entry.IPAddress, "source": "cli"},
	})
	fmt.Fprintf(c.App.Writer, "unblocked %s\n", entry.IPAddress)
	return nil
}

func userIDArg(c *cli.Context) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Args().First(), &id); err != nil || id == 0 {
		return 0, cli.Exit(fmt.Sprintf("usage: campus-gateway %s <user-id>", c.Command.Name), 2)
	}
	return id, nil
}

func unlockAccount(c *cli.Context) error {
	userID, err := userIDArg(c)
	if err != nil {
		return err
	}
	s, err := newServices(false)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.api.Users.FindByID(c.Context, userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	if _, err := s.api.Lockout.Unlock(c.Context, userID, cliActor); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "unlocked account %d\n", userID)
	return nil
}

func createUser(c *cli.Context) error {
	s, err := newServices(false)
	if err != nil {
		return err
	}
	defer s.Close()

	var role model.Role
	if err := s.db.WithContext(c.Context).Where("name = ?", c.String("role")).First(&role).Error; err != nil {
		return fmt.Errorf("role %q: %w", c.String("role"), err)
	}
	u := &model.User{
		Name:     util.NormalizeName(c.String("name")),
		Email:    strings.ToLower(strings.TrimSpace(c.String("email"))),
		Password: util.HashPassword(c.String("password")),
		RoleID:   role.ID,
	}
	if err := s.api.Users.Create(c.Context, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "created user %d (%s, %s)\n", u.ID, u.Email, role.Name)
	return nil
}

func issueToken(c *cli.Context) error {
	userID, err := userIDArg(c)
	if err != nil {
		return err
	}
	s, err := newServices(false)
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.api.Users.FindByID(c.Context, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	token, err := middleware.NewAccessToken(u.ID, u.Role.Name, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func updateGeoIP(c *cli.Context) error {
	cfg, err := config.LoadSecurityConfig()
	if err != nil {
		return err
	}
	if cfg.GeoIPDBPath == "" {
		return cli.Exit("GEOIP_DB_PATH is not set", 2)
	}
	path, err := util.DownloadGeoIPWithRequest(c.Context, util.DownloadRequest{URL: c.String("url"), DestPath: cfg.GeoIPDBPath})
	if err != nil {
		return fmt.Errorf("download geoip database: %w", err)
	}
	if err := util.ValidateGeoIP(path); err != nil {
		return fmt.Errorf("downloaded geoip database is unreadable: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "geoip database written to %s\n", path)
	return nil
}
