package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/statistics"
)

// HistoryCmd summarises the turns of a saved session.
type HistoryCmd struct {
	File     string `arg:"" name:"file" help:"JSON save file or sqlite database"`
	Session  string `help:"Session to read from a sqlite database (default: most recent)"`
	PerTurn  bool   `help:"Include the turn by turn breakdown"`
	Sessions bool   `help:"List the sessions stored in a sqlite database instead"`
}

type sessionSummary struct {
	SessionID string    `yaml:"session_id"`
	Turns     int       `yaml:"turns"`
	Saves     int       `yaml:"saves"`
	LastSave  time.Time `yaml:"last_save"`
}

type historySummary struct {
	SessionID string            `yaml:"session_id"`
	Phase     string            `yaml:"phase"`
	SavedAt   time.Time         `yaml:"saved_at"`
	Report    statistics.Report `yaml:"report"`
}

func (cmd *HistoryCmd) Run() error {
	return cmd.run(context.Background(), os.Stdout)
}

func (cmd *HistoryCmd) run(ctx context.Context, out io.Writer) error {
	store, err := openSave(cmd.File, cmd.Session)
	if err != nil {
		return err
	}
	defer store.Close()

	if cmd.Sessions {
		db, ok := store.(*backup.SQLiteStore)
		if !ok {
			return errors.New("--sessions needs a sqlite database")
		}
		infos, err := db.Sessions(ctx)
		if err != nil {
			return err
		}
		list := make([]sessionSummary, len(infos))
		for i, s := range infos {
			list[i] = sessionSummary{SessionID: s.SessionID, Turns: s.Turn, Saves: s.Saves, LastSave: s.LastSave}
		}
		return encodeYAML(out, list)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", cmd.File, err)
	}
	return encodeYAML(out, historySummary{
		SessionID: snap.SessionID,
		Phase:     snap.Phase.String(),
		SavedAt:   snap.SavedAt,
		Report:    statistics.Compute(snap.History, cmd.PerTurn),
	})
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
