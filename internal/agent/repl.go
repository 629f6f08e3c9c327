package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Dev-Umb/wife-generate-game/internal/tui"
)

// MenuChoice tells the caller what the player wants after Run returns.
type MenuChoice int

const (
	// ChoiceMenu returns to the session list.
	ChoiceMenu MenuChoice = iota
	// ChoiceQuit exits the program.
	ChoiceQuit
)

// Run reads input from ui and plays turns until the player leaves. The
// session is saved and unloaded before Run returns.
func Run(ctx context.Context, o *Orchestrator, ui tui.IO) (MenuChoice, error) {
	choice, err := readLoop(ctx, o, ui)
	if merr := o.ReturnToMenu(context.WithoutCancel(ctx)); merr != nil && err == nil {
		err = merr
	}
	return choice, err
}

func readLoop(ctx context.Context, o *Orchestrator, ui tui.IO) (MenuChoice, error) {
	for {
		if ctx.Err() != nil {
			return ChoiceQuit, nil
		}
		line, err := ui.ReadInput()
		if errors.Is(err, io.EOF) {
			return ChoiceQuit, nil
		}
		if err != nil {
			return ChoiceQuit, fmt.Errorf("read input: %w", err)
		}

		st := o.Snapshot()
		if st == nil {
			return ChoiceMenu, ErrNoSession
		}
		cmd := tui.ParseCommand(line, st.SuggestedReplies)

		var outcome *TurnOutcome
		switch cmd.Kind {
		case tui.CommandChat:
			if strings.TrimSpace(cmd.Text) == "" {
				continue
			}
			outcome, err = o.SendMessage(ctx, cmd.Text)
		case tui.CommandAction:
			outcome, err = o.SendAction(ctx, cmd.Action)
		case tui.CommandMenu:
			return ChoiceMenu, nil
		case tui.CommandQuit:
			return ChoiceQuit, nil
		case tui.CommandStatus:
			ui.SystemMessage(render(func(w io.Writer) { tui.RenderStatus(w, st) }))
			continue
		case tui.CommandMemories:
			ui.SystemMessage(render(func(w io.Writer) { tui.RenderMemories(w, st) }))
			continue
		case tui.CommandItems:
			ui.SystemMessage(render(func(w io.Writer) { tui.RenderItems(w, st) }))
			continue
		case tui.CommandHelp:
			ui.SystemMessage(tui.HelpText)
			continue
		default:
			ui.Warning(fmt.Sprintf("unknown command %q, try /help", cmd.Text))
			continue
		}

		switch {
		case errors.Is(err, ErrSessionEnded):
			ui.SystemMessage("故事已经结束。输入 /menu 返回。")
		case err != nil:
			ui.Error(err.Error())
		case outcome.Failed:
			ui.Error(fmt.Sprintf("连接中断: %v", outcome.Err))
		case outcome.Capped:
			ui.Warning(fmt.Sprintf("本回合已达到 %d 轮上限", outcome.Rounds))
		}
	}
}

func render(fn func(w io.Writer)) string {
	var b strings.Builder
	fn(&b)
	return strings.TrimRight(b.String(), "\n")
}
