package cli

import (
	"fmt"
	"io"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "add", "use")
	Action string

	// AccountID is the account involved (if any)
	AccountID string

	// Selected is true when the account is the stored context.
	Selected bool
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "add":
		return hintsForAdd(ctx)
	case "use":
		return hintsForUse(ctx)
	default:
		return nil
	}
}

func hintsForAdd(ctx HintContext) []string {
	if ctx.AccountID == "" {
		return nil
	}
	id := shortID(ctx.AccountID)
	hints := make([]string, 0, 3)
	if !ctx.Selected {
		hints = append(hints, fmt.Sprintf("fedistream use %s                 # Select it", id))
	}
	hints = append(hints,
		fmt.Sprintf("fedistream settings set %s --public # Stream the federated timeline", id),
		fmt.Sprintf("fedistream stream %s              # Start streaming", id),
	)
	return hints
}

func hintsForUse(ctx HintContext) []string {
	if ctx.AccountID == "" {
		return []string{"fedistream accounts list            # Pick an account"}
	}
	return []string{
		"fedistream stream                   # Stream the selected account",
		"fedistream settings get             # Show its channel settings",
	}
}
