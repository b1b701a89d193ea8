package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/persona-backend/internal/client/recovery"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

var submitCmd = &cobra.Command{
	Use:   "submit <responses.json>",
	Short: "Submit responses and, if the analysis is still processing, recover it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		responses, err := readResponses(args[0])
		if err != nil {
			return err
		}
		s, log, err := newSession(viper.GetString("variant"))
		if err != nil {
			return err
		}
		defer log.Sync()

		snap, err := s.Submit(cmd.Context(), viper.GetString("assessment-id"), responses)
		if err != nil {
			return err
		}
		wait := viper.GetDuration("poll-interval")
		for snap.State == recovery.Processing && s.RetriesLeft() > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "waiting for analysis of assessment %s (%d refreshes left)\n", snap.AssessmentID, s.RetriesLeft())
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(wait):
			}
			snap, err = s.Refresh(cmd.Context())
			if err != nil && !errors.Is(err, recovery.ErrNoAnalysis) {
				return err
			}
			if errors.Is(err, recovery.ErrNoAnalysis) && s.RetriesLeft() > 0 {
				snap.State = recovery.Processing
			}
		}
		return printResult(cmd, s, snap)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a stored analysis by id, assessment id or user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var res *recovery.FetchResponse
		switch {
		case viper.GetString("id") != "":
			res, err = c.FetchByID(cmd.Context(), viper.GetString("id"))
		case viper.GetString("assessment-id") != "":
			res, err = c.FetchByAssessment(cmd.Context(), viper.GetString("assessment-id"))
		case viper.GetString("user-id") != "":
			if viper.GetString("token") == "" {
				return errors.New("--user-id lookups are served only to the signed-in user; pass --token")
			}
			res, err = c.FetchLatestForUser(cmd.Context(), viper.GetString("user-id"))
		default:
			return errors.New("one of --id, --assessment-id or --user-id is required")
		}
		if err != nil {
			return err
		}
		return writeJSON(cmd, res)
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run the recovery chain once for a stored id, assessment id and user",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, log, err := newSession(viper.GetString("variant"))
		if err != nil {
			return err
		}
		defer log.Sync()
		s.Resume(viper.GetString("id"), viper.GetString("assessment-id"))
		snap, err := s.Refresh(cmd.Context())
		if err != nil && !errors.Is(err, recovery.ErrNoAnalysis) {
			return err
		}
		return printResult(cmd, s, snap)
	},
}

func init() {
	submitCmd.Flags().String("variant", "analyze-responses-deep", "analysis variant or alias (deep, deep-insight, concise, big-me)")
	submitCmd.Flags().String("assessment-id", "", "assessment id; generated by the server when empty")
	submitCmd.Flags().Duration("poll-interval", 5*time.Second, "wait between refreshes while processing")

	fetchCmd.Flags().String("id", "", "stored analysis id")
	fetchCmd.Flags().String("assessment-id", "", "assessment id")

	recoverCmd.Flags().String("variant", "analyze-responses-deep", "analysis variant")
	recoverCmd.Flags().String("id", "", "stored analysis id")
	recoverCmd.Flags().String("assessment-id", "", "assessment id")

	for _, c := range []*cobra.Command{submitCmd, fetchCmd, recoverCmd} {
		cmd := c
		cmd.PreRunE = func(*cobra.Command, []string) error {
			return viper.BindPFlags(cmd.Flags())
		}
	}
}

// readResponses accepts a list of responses or a questionId -> answer map.
func readResponses(path string) ([]domain.RawResponse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}
	var list []domain.RawResponse
	if err := jsonx.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var m map[string]string
	if err := jsonx.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse responses: expected an array or an object")
	}
	out := make([]domain.RawResponse, 0, len(m))
	for id, answer := range m {
		out = append(out, domain.RawResponse{QuestionID: id, CustomResponse: answer})
	}
	return out, nil
}

func printResult(cmd *cobra.Command, s *recovery.Session, snap recovery.Snapshot) error {
	if msg := s.Message(); msg != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	}
	if snap.State != recovery.Ready {
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("analysis not ready (state %s)", snap.State)
	}
	return writeJSON(cmd, map[string]any{
		"assessmentId": snap.AssessmentID,
		"storedId":     snap.StoredID,
		"source":       snap.Source,
		"degraded":     s.IsDegraded(),
		"analysis":     snap.Analysis,
	})
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := jsonx.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
