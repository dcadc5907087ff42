package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/background"
	"github.com/pitabwire/autotranslate/client"
	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/contentscript"
	"github.com/pitabwire/autotranslate/internal"
	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/profiler"
	"github.com/pitabwire/autotranslate/ratelimiter"
	"github.com/pitabwire/autotranslate/telemetry"
	"github.com/pitabwire/autotranslate/translator"
	"github.com/pitabwire/autotranslate/translator/libretranslate"
	"github.com/pitabwire/autotranslate/version"
	"github.com/pitabwire/autotranslate/workerpool"
)

const (
	minArgsCommand       = 2
	defaultHTTPTimeout   = 30 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

func main() {
	if len(os.Args) < minArgsCommand {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		exitOnErr(cmdServe(os.Args[2:]))
	case "page":
		exitOnErr(cmdPage(os.Args[2:]))
	case "version":
		printVersion()
	case "help", "-h", "--help":
		usage()
	default:
		// #nosec G705 -- CLI output is not rendered in an HTML context.
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stdout, "autotranslate <command> [args]")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Commands:")
	fmt.Fprintln(os.Stdout, "  serve [--pseudo]")
	fmt.Fprintln(os.Stdout, "  page --host HOST --lang LANG [--title TITLE] [--id ID] [--pseudo] <text>...")
	fmt.Fprintln(os.Stdout, "  version")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Settings are read from the environment, see config.ConfigurationDefault.")
}

func printVersion() {
	fmt.Fprintf(os.Stdout, "autotranslate %s\n", version.Get())
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// runtime is the ambient state every context shares within one process.
type runtime struct {
	cfg       *config.ConfigurationDefault
	telemetry telemetry.Manager
	work      workerpool.Manager
	messages  localization.Manager
	limiter   *ratelimiter.KeyedLimiter
	profiler  *profiler.Server
}

func setup(ctx context.Context) (context.Context, *runtime, error) {
	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		return ctx, nil, fmt.Errorf("could not read configuration: %w", err)
	}

	tm := telemetry.NewManager(ctx, &cfg,
		telemetry.WithService(telemetry.Service{
			Name:        cfg.Name(),
			Version:     version.Get().Version,
			Environment: cfg.Environment(),
			ContextID:   cfg.ContextID(),
		}),
	)
	if err = tm.Init(ctx); err != nil {
		return ctx, nil, fmt.Errorf("could not set up telemetry: %w", err)
	}

	var logOpts []util.Option
	if handler := tm.LogHandler(); handler != nil {
		logOpts = append(logOpts, util.WithLogHandler(handler))
	}
	log := internal.NewLogger(ctx, &cfg, logOpts...).WithField("context", cfg.ContextID())
	ctx = util.ContextWithLogger(ctx, log)
	ctx = config.ToContext(ctx, &cfg)
	ctx = localization.ToContext(ctx, cfg.GetMessageLanguages())

	work, err := workerpool.NewManager(ctx, &cfg, func(ctx context.Context, err error) {
		util.Log(ctx).WithError(err).Error("worker pool stopped")
	})
	if err != nil {
		return ctx, nil, err
	}

	messages, err := localization.NewManager(cfg.GetMessageLanguages()...)
	if err != nil {
		return ctx, nil, err
	}

	rt := &runtime{
		cfg:       &cfg,
		telemetry: tm,
		work:      work,
		messages:  messages,
		limiter:   ratelimiter.FromConfig(&cfg),
		profiler:  profiler.NewServer(),
	}
	if err = rt.profiler.StartIfEnabled(ctx, &cfg); err != nil {
		return ctx, nil, err
	}
	return ctx, rt, nil
}

func (r *runtime) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownGrace)
	defer cancel()

	if err := r.profiler.Stop(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not stop profiler")
	}
	if r.limiter != nil {
		util.CloseAndLogOnError(ctx, r.limiter)
	}
	if err := r.work.Shutdown(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not stop worker pool")
	}
	if err := r.telemetry.Shutdown(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not flush telemetry")
	}
}

func (r *runtime) modules(pseudo bool) []translator.Module {
	if pseudo {
		return []translator.Module{translator.Pseudo()}
	}
	return []translator.Module{
		libretranslate.Module(r.cfg.GetTranslatorEndpoint(), r.cfg.GetTranslatorAPIKey(),
			client.WithHTTPTimeout(defaultHTTPTimeout)),
		translator.Pseudo(),
	}
}

// startBackground opens the background bus and serves it until Close.
func (r *runtime) startBackground(ctx context.Context, pseudo bool) (*messaging.Bus, *background.Background, error) {
	bus, err := messaging.NewBus(ctx, r.cfg.ContextID(), r.cfg, r.work, messaging.WithMessages(r.messages))
	if err != nil {
		return nil, nil, err
	}

	opts := []background.Option{background.WithModules(r.modules(pseudo)...)}
	if r.limiter != nil {
		opts = append(opts, background.WithLimiter(r.limiter))
	}

	bg, err := background.New(ctx, r.cfg, bus, opts...)
	if err != nil {
		util.CloseAndLogOnError(ctx, closer(ctx, bus))
		return nil, nil, err
	}

	if err = bg.Start(ctx); err != nil {
		util.CloseAndLogOnError(ctx, closer(ctx, bg))
		util.CloseAndLogOnError(ctx, closer(ctx, bus))
		return nil, nil, err
	}
	return bus, bg, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	pseudo := fs.Bool("pseudo", false, "only register the offline pseudo translator")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	ctx, rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)

	bus, bg, err := rt.startBackground(ctx, *pseudo)
	if err != nil {
		return err
	}

	log := util.Log(ctx)
	log.WithField("revision", bg.Settings().Revision()).
		WithField("modules", bg.Translators().Modules()).
		Info("background context serving")

	<-ctx.Done()
	log.Info("background context stopping")

	sctx := context.WithoutCancel(ctx)
	return errors.Join(bg.Close(sctx), bus.Close(sctx))
}

// cmdPage loads one page context against a background context, runs the
// auto translate decision and prints the resulting page text.
func cmdPage(args []string) error {
	fs := flag.NewFlagSet("page", flag.ContinueOnError)
	host := fs.String("host", "example.org", "host of the page")
	lang := fs.String("lang", "", "language the page declares")
	title := fs.String("title", "", "page title")
	id := fs.String("id", "", "context id of the page, generated when empty")
	pseudo := fs.Bool("pseudo", false, "run a background context in process with the pseudo translator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("page text is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)

	if *pseudo {
		bgBus, bg, bgErr := rt.startBackground(ctx, true)
		if bgErr != nil {
			return bgErr
		}
		defer func() {
			sctx := context.WithoutCancel(ctx)
			util.CloseAndLogOnError(sctx, closer(sctx, bg))
			util.CloseAndLogOnError(sctx, closer(sctx, bgBus))
		}()
	}

	pageID := *id
	if pageID == "" {
		pageID = "page-" + util.IDString()
	}

	bus, err := messaging.NewBus(ctx, pageID, rt.cfg, rt.work, messaging.WithMessages(rt.messages))
	if err != nil {
		return err
	}
	defer util.CloseAndLogOnError(ctx, closer(context.WithoutCancel(ctx), bus))

	doc := contentscript.NewDocument(*host, *lang, *title, fs.Args()...)
	page, err := contentscript.Load(ctx, bus, rt.cfg.ContextID(), rt.cfg, doc)
	if err != nil {
		return err
	}
	defer page.Close()

	if err = page.Serve(ctx, bus); err != nil {
		return err
	}

	translated, err := page.Interactive(ctx)
	if err != nil {
		return err
	}

	if direction, ok := page.Engine().PageDirection(); ok {
		fmt.Fprintf(os.Stdout, "translated %s -> %s\n", direction.From, direction.To)
	} else if !translated {
		fmt.Fprintln(os.Stdout, "page left untranslated")
	}
	if t := doc.Title(); t != "" {
		fmt.Fprintln(os.Stdout, t)
	}
	fmt.Fprintln(os.Stdout, strings.Join(doc.Texts(), "\n"))
	return nil
}

type closeFunc func() error

func (f closeFunc) Close() error {
	return f()
}

// closer adapts the context aware Close of buses and contexts to io.Closer.
func closer(ctx context.Context, c interface{ Close(context.Context) error }) closeFunc {
	return func() error {
		return c.Close(ctx)
	}
}
