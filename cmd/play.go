package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/agent"
	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
	"github.com/Dev-Umb/wife-generate-game/internal/tui"
)

// playOptions are the flags shared by the root command and play.
type playOptions struct {
	resume      string
	personaFile string
	prefs       agent.Preferences
	player      string
	style       string
	reference   string
}

func (o *playOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.resume, "resume", "", "resume the session with this id")
	f.StringVar(&o.personaFile, "persona", "", "load the character from a YAML file instead of generating one")
	f.StringVar(&o.prefs.World, "world", "", "world or setting for a generated character")
	f.StringVar(&o.prefs.Race, "race", "", "race for a generated character")
	f.StringVar(&o.prefs.Job, "job", "", "job for a generated character")
	f.StringVar(&o.prefs.Personality, "personality", "", "personality for a generated character")
	f.StringVar(&o.prefs.Name, "name", "", "force the character's name")
	f.StringVar(&o.prefs.Appearance, "appearance", "", "force the character's appearance")
	f.StringVar(&o.prefs.Plot, "plot", "", "how the first meeting should go")
	f.StringVar(&o.player, "player", "", "who you are playing as")
	f.StringVar(&o.style, "style", "", "art style: Anime, Manga or Male (default from config)")
	f.StringVar(&o.reference, "reference", "", "reference image for a custom character's look")
}

// newSessionRequested reports whether flags describe a new character.
func (o *playOptions) newSessionRequested() bool {
	return o.personaFile != "" || o.prefs != (agent.Preferences{})
}

func newPlayCmd() *cobra.Command {
	var opts playOptions
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start or resume a story",
		Example: `  waifu play --world 现代都市 --job 咖啡师
  waifu play --persona luna.yaml --style Manga
  waifu play --resume 6f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

// runPlay drives the menu and the REPL until the player quits.
func runPlay(cmd *cobra.Command, opts playOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	env, err := newPlayEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	prompts, err := agent.LoadPrompts(agent.PromptOverrideDir())
	if err != nil {
		return err
	}

	ui := tui.NewPlainIO(os.Stdin, os.Stdout, os.Stderr, verboseOutput(cmd))
	cfg := env.cfg
	saver := session.NewSaver(env.store, cfg.SaveDebounce, env.logger, func(err error) {
		ui.Warning(fmt.Sprintf("存档失败: %v", err))
	})
	o := agent.New(agent.Options{
		Provider:    env.provider,
		Synthesizer: env.synth,
		IO:          ui,
		Logger:      env.logger,
		Prompts:     prompts,
		Saver:       saver,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxRounds:   cfg.MaxRounds,
		JournalDir:  cfg.JournalDir,
	})
	defer func() {
		if err := o.Close(context.WithoutCancel(ctx)); err != nil {
			env.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	p := &player{env: env, o: o, ui: ui, prompts: prompts, opts: opts}
	fmt.Fprintf(os.Stdout, "waifu %s\n", displayVersion())

	loaded := false
	switch {
	case opts.resume != "":
		if err := p.resume(ctx, opts.resume); err != nil {
			return err
		}
		loaded = true
	case opts.newSessionRequested():
		if err := p.create(ctx); err != nil {
			return err
		}
		loaded = true
	}

	for {
		if !loaded {
			quit, err := p.menu(ctx)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
		loaded = false

		choice, err := agent.Run(ctx, o, ui)
		if err != nil {
			return err
		}
		if choice == agent.ChoiceQuit || ctx.Err() != nil {
			return nil
		}
	}
}

// player holds what the menu needs between stories.
type player struct {
	env     *runtimeEnv
	o       *agent.Orchestrator
	ui      tui.IO
	prompts *agent.Prompts
	opts    playOptions
}

// menu lists saved sessions and loads the one the player picks. It returns
// true when the player leaves instead.
func (p *player) menu(ctx context.Context) (bool, error) {
	for {
		infos, err := p.env.store.List(ctx)
		if err != nil {
			return false, fmt.Errorf("list sessions: %w", err)
		}
		printSessions(os.Stdout, infos)
		fmt.Fprintln(os.Stdout, "\n[n] new story   [1-9] continue   [q] quit")

		line, err := p.ui.ReadInput()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("read input: %w", err)
		}

		switch line = strings.ToLower(strings.TrimSpace(line)); line {
		case "q", "quit", "/quit":
			return true, nil
		case "n", "new":
			if err := p.create(ctx); err != nil {
				if ctx.Err() != nil {
					return true, nil
				}
				p.ui.Error(err.Error())
				continue
			}
			return false, nil
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(infos) {
			p.ui.Warning("请输入 n、q 或存档编号")
			continue
		}
		if err := p.resume(ctx, infos[idx-1].ID); err != nil {
			p.ui.Error(err.Error())
			continue
		}
		return false, nil
	}
}

func (p *player) resume(ctx context.Context, id string) error {
	st, err := p.env.store.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("no saved session %q", id)
	}
	if err != nil {
		return err
	}
	tui.RenderHistory(os.Stdout, st)
	return p.o.Start(st)
}

// create builds a character (from file or generated) and opens its story.
func (p *player) create(ctx context.Context) error {
	cfg := p.env.cfg
	var (
		persona *game.Persona
		err     error
	)
	if p.opts.personaFile != "" {
		persona, err = agent.LoadPersonaFile(p.opts.personaFile)
	} else {
		p.ui.SystemMessage("正在生成角色...")
		persona, err = agent.GeneratePersona(ctx, p.env.provider, p.prompts, cfg.UserName, p.opts.prefs, p.env.logger)
	}
	if err != nil {
		return err
	}

	reference, err := loadReference(p.opts.reference)
	if err != nil {
		return err
	}
	style := p.opts.style
	if style == "" {
		style = cfg.Image.Style
	}

	p.ui.SystemMessage(fmt.Sprintf("正在绘制 %s 与初遇场景...", persona.Name))
	st, err := p.o.CreateSession(ctx, agent.NewSession{
		UserName:      cfg.UserName,
		PlayerPersona: p.opts.player,
		ArtStyle:      style,
		Persona:       persona,
		Reference:     reference,
	})
	if err != nil {
		return err
	}
	tui.RenderHistory(os.Stdout, st)
	return nil
}

// loadReference reads an image file into a data URI. Empty path returns "".
func loadReference(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read reference image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("reference %s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func printSessions(w io.Writer, infos []session.SessionInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "\nNo saved stories.")
		return
	}
	fmt.Fprintln(w, "\nSaved stories:")
	for i, info := range infos {
		status := ""
		if info.Ended {
			status = " [ended]"
		}
		fmt.Fprintf(w, "  %d. %-12s affection %4d  %3d msgs  %s%s\n",
			i+1, info.PersonaName, info.Affection, info.Messages, info.UpdatedAt.Local().Format("2006-01-02 15:04"), status)
	}
}
