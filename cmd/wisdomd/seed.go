package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/flow"
)

// seedCmd installs the default composition templates.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed default composition templates",
	Long: `Install one default composition template per conversation phase. Safe to
run on an empty store; on a populated store it adds alongside existing
templates, so run it once per store.

Examples:
  wisdomd seed`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

// defaultTemplates covers every phase with a generic (mood- and
// topic-unscoped) template so a fresh store can compose from the first
// learned atoms.
func defaultTemplates() []compose.Template {
	specs := []struct {
		name  string
		phase flow.Phase
		slots []compose.Slot
	}{
		{"connect-opener", flow.PhaseConnect, []compose.Slot{compose.SlotOpener, compose.SlotCloser}},
		{"listen-reflect", flow.PhaseListen, []compose.Slot{compose.SlotOpener, compose.SlotBody}},
		{"understand-insight", flow.PhaseUnderstand, []compose.Slot{compose.SlotOpener, compose.SlotBody, compose.SlotCloser}},
		{"guide-action", flow.PhaseGuide, []compose.Slot{compose.SlotBody, compose.SlotAction, compose.SlotCloser}},
		{"empower-send-off", flow.PhaseEmpower, []compose.Slot{compose.SlotAction, compose.SlotCloser}},
	}

	now := time.Now().UTC()
	templates := make([]compose.Template, 0, len(specs))
	for _, s := range specs {
		templates = append(templates, compose.Template{
			ID:        uuid.NewString(),
			Name:      s.name,
			Slots:     s.slots,
			Phase:     s.phase,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return templates
}

func runSeed(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.close()

	created := 0
	for _, tmpl := range defaultTemplates() {
		tmpl := tmpl
		if err := env.store.CreateTemplate(cmd.Context(), &tmpl); err != nil {
			return fmt.Errorf("creating template %q: %w", tmpl.Name, err)
		}
		created++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d templates\n", created)
	return nil
}
