package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/cache"
	"github.com/nagiyu/niconico-mylist-assistant/internal/repositories"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/store"
	"github.com/nagiyu/niconico-mylist-assistant/internal/tasks"
	"github.com/urfave/cli/v3"
)

// defaultOwner owns the records of the --local store when no --owner is given.
const defaultOwner = "local"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	backend cache.Backend
	lookup  services.VideoLookup
	jobs    services.JobSubmitter
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer

	// Backend, Lookup and Jobs replace the collaborators otherwise built from the config.
	Backend cache.Backend
	Lookup  services.VideoLookup
	Jobs    services.JobSubmitter
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		backend:    opts.Backend,
		lookup:     opts.Lookup,
		jobs:       opts.Jobs,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, serveCommand, musicCommand, autoCommand, notificationsCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads path when it exists and overlays the environment.
//
// A missing file keeps the current config so commands work on defaults alone.
func (r *Runner) loadConfig(path string) error {
	config := r.config
	if path != "" {
		loaded, err := shared.LoadConfig(path)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", path)
		default:
			return err
		}
	}

	if err := shared.ApplyEnv(config, ".env"); err != nil {
		return err
	}
	r.config = config
	return nil
}

// before loads the config named by --config and applies the log level.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if p := cmd.String("config"); p != "" {
		r.configPath = p
	}
	if r.configPath != "" {
		if err := r.loadConfig(r.configPath); err != nil {
			return ctx, err
		}
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// session is what one command talks to: the record backend plus the services around it.
type session struct {
	backend cache.Backend
	lookup  services.VideoLookup
	jobs    services.JobSubmitter
	owner   string
	close   func() error
}

// open connects to the running server, or with --local to the configured store directly.
func (r *Runner) open(ctx context.Context, cmd *cli.Command) (*session, error) {
	s := &session{
		backend: r.backend,
		lookup:  r.lookup,
		jobs:    r.jobs,
		owner:   cmd.String("owner"),
		close:   func() error { return nil },
	}
	if s.owner == "" {
		s.owner = defaultOwner
	}
	if s.backend != nil {
		return s, nil
	}

	if cmd.Bool("local") {
		return r.openLocal(ctx, s)
	}
	return r.openRemote(ctx, s)
}

func (r *Runner) openLocal(ctx context.Context, s *session) (*session, error) {
	st, err := store.Open(ctx, r.config, r.logger)
	if err != nil {
		return nil, err
	}

	repo := repositories.NewMusicRepository(st, r.logger)
	s.backend = repo.ForOwner(s.owner)
	s.close = st.Close

	if s.lookup == nil {
		s.lookup = services.NewNiconicoService(r.config.Niconico, r.httpClient, r.logger)
	}
	if s.jobs == nil && r.config.Register.Endpoint != "" {
		reg, err := services.NewRegisterService(r.config.Register, r.config.Server, nil, r.logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		s.jobs = reg
	}

	r.logger.Debug("using local store", "driver", r.config.Store.Driver, "owner", s.owner)
	return s, nil
}

func (r *Runner) openRemote(ctx context.Context, s *session) (*session, error) {
	ts, err := r.tokenSource(ctx)
	if err != nil {
		return nil, err
	}

	client := services.NewMusicClient(r.config.Client.APIURL, r.httpClient, ts)
	s.backend = client
	if s.lookup == nil {
		s.lookup = client
	}
	if s.jobs == nil {
		s.jobs = client
	}

	r.logger.Debug("using music API", "url", r.config.Client.APIURL)
	return s, nil
}

// engine builds a cache and task engine over the session.
func (r *Runner) engine(s *session) *tasks.Engine {
	ctrl := cache.NewController(s.backend, r.logger)
	ctrl.OnUnauthorized(func() {
		r.logger.Warn("session rejected, run 'nma auth login' again")
	})
	return tasks.NewEngine(ctrl, s.lookup, s.jobs, r.logger).ForOwner(s.owner)
}

// emit writes data as JSON when --json is set and calls plain otherwise.
func (r *Runner) emit(cmd *cli.Command, data any, plain func() error) error {
	if cmd.Bool("json") {
		return r.writeJSON(data, cmd.Bool("pretty"))
	}
	return plain()
}

// progress prints engine updates until the returned stop function is called.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			switch update.Phase {
			case tasks.ResolveTitles:
				if update.Step == 0 {
					r.writePlain("\n🔍 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.SubmitJob:
				r.writePlain("\n📨 %s\n", update.Message)
			default:
				r.writePlain("• %s\n", update.Message)
			}
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
