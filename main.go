package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CodedInternet/pitank/comms"
	"github.com/CodedInternet/pitank/onboard"
	"github.com/CodedInternet/pitank/onboard/joystick"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/edaniels/golog"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

type EnvConfig struct {
	JWT_ISSUER      string        `env:"JWT_ISSUER" envDefault:"pitank"`
	JWT_SECRET      string        `env:"JWT_SECRET"`
	DEBUG           bool          `env:"DEBUG" envDefault:"false"`
	SRCDIR          string        `env:"SRCDIR" envDefault:"."`
	HTMLDIR         string        `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	DB_PATH         string        `env:"DB_PATH" envDefault:"./tmp/dev.db"`
	CONFIG          string        `env:"CONFIG" envDefault:"tank.yaml"`
	STATUS_INTERVAL time.Duration `env:"STATUS_INTERVAL" envDefault:"100ms"`

	DB        *storm.DB
	Tank      onboard.Tank
	Conductor *comms.Conductor
	Logger    golog.Logger
	Simulated bool
}

var (
	ENV = new(EnvConfig)
)

func main() {
	app := cli.NewApp()
	app.Name = "pitank"
	app.Usage = "drive the tank from a gamepad or the web"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "device config file, defaults to $SRCDIR/$CONFIG",
		},
		cli.StringFlag{
			Name:  "http",
			Value: "0.0.0.0:8080",
			Usage: "http server listening address",
		},
		cli.StringFlag{
			Name:  "serial",
			Usage: "serial port of the motor control node, overrides the config",
		},
		cli.BoolFlag{
			Name:  "shell",
			Usage: "start the development shell on stdin",
		},
		cli.BoolFlag{
			Name:  "sim",
			Usage: "run against simulated drivers",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) (err error) {
	if err = env.Parse(ENV); err != nil {
		return errors.Wrap(err, "unable to parse environment")
	}
	if ENV.JWT_SECRET != "" {
		JWT_HMAC_SECRET = []byte(ENV.JWT_SECRET)
	}

	if ENV.DEBUG {
		ENV.Logger = golog.NewDevelopmentLogger("pitank")
	} else {
		ENV.Logger = golog.NewLogger("pitank")
	}
	logger := ENV.Logger
	defer logger.Sync()

	config, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if port := c.String("serial"); port != "" {
		config.Serial.Port = port
	}

	ENV.Simulated = c.Bool("sim")
	var drivers onboard.Drivers
	if ENV.Simulated {
		logger.Info("running with simulated drivers")
		drivers = onboard.NewSimulatedDrivers(logger)
	} else {
		drivers = onboard.OpenDrivers(config, logger.Named("hardware"))
	}

	var pad onboard.Gamepad
	if dev, padErr := joystick.Open(config.Gamepad.Device); padErr != nil {
		logger.Warnw("no gamepad", "device", config.Gamepad.Device, "error", padErr)
	} else {
		pad = dev
	}

	tank, err := onboard.NewActuatorTank(config, drivers, pad, logger.Named("tank"))
	if err != nil {
		return err
	}
	ENV.Tank = tank

	ENV.DB, err = openDb(ENV.DB_PATH)
	if err != nil {
		tank.Close()
		return errors.Wrapf(err, "unable to open %s", ENV.DB_PATH)
	}
	defer ENV.DB.Close() // close database when finished

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tank.Start(ctx)

	ENV.Conductor = comms.NewConductor(tank, ENV.STATUS_INTERVAL, logger.Named("comms"))
	go ENV.Conductor.UpdateClients(ctx)

	if c.Bool("shell") {
		// Start an instance of the shell so it can be controlled from the CLI
		shell := newShell(tank, ENV.DB)
		go shell.Start()
	}

	server := &http.Server{
		Addr:    c.String("http"),
		Handler: NewRouter(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.Infow("shutting down", "signal", sig.String())
	case err = <-serveErr:
		logger.Errorw("http server stopped", "error", err)
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	server.Shutdown(shutdownCtx)

	if closeErr := tank.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}

// loadConfig reads the device config. A missing default file is not an error,
// the built in defaults are used instead.
func loadConfig(path string) (onboard.TankConfig, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(ENV.SRCDIR, ENV.CONFIG)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		ENV.Logger.Warnw("no device config, using defaults", "path", path)
		config := onboard.DefaultTankConfig()
		return config, config.Validate()
	}

	return onboard.LoadTankConfig(path)
}

func NewRouter() chi.Router {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			r.Use(ValidateJWT)
			r.Get("/refresh_token", JWTRefresh)
		})

		r.Group(func(r chi.Router) {
			if !ENV.DEBUG {
				r.Use(ValidateJWT)
			}

			r.Post("/control", Control)
			r.Post("/crane_control", CraneControl)
			r.Post("/gamepad_control", GamepadControl)
			r.Get("/status", Status)
			r.Get("/crane_status", CraneStatus)
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else if ENV.Logger != nil {
			ENV.Logger.Warn("running in debug mode, websocket authentication disabled")
		}

		r.Get("/status", ENV.Conductor.StatusHandler)
		r.Get("/control", ENV.Conductor.ControlHandler)
	})

	// add static base routes
	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	return r
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&Operator{}); err != nil {
		db.Close()
		return nil, err
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
