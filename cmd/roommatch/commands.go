package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/preference"
	"github.com/rushteam/roommatch/profile"
)

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Open the configured store and apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app) error {
			printSuccess("store %s is up to date", a.store.Name())
			return nil
		})
	},
}

// --- traits ---

var traitsCmd = &cobra.Command{
	Use:   "traits",
	Short: "List the lifestyle traits known to the feature registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app) error {
			return printJSON(cmd.OutOrStdout(), a.registry.All())
		})
	},
}

var traitsSetCmd = &cobra.Command{
	Use:   "set USER_ID TRAIT [TRAIT...]",
	Short: "Replace a user's declared traits, keeping learned preferences",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			names, err := a.registrar.UpdateTraits(ctx, id, args[1:])
			if err != nil {
				return err
			}
			if ignored := len(args[1:]) - len(names); ignored > 0 {
				printError("%d unknown or duplicate traits ignored", ignored)
			}
			printSuccess("updated traits of user %d", id)
			return printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "features": names})
		})
	},
}

// --- register ---

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a user from a YAML profile",
	Long: `Register a user from a YAML profile.

Example profile:
  name: alice
  age: 25
  rent: 700
  age_range: "+/- 2 years"
  rent_range: "+/- £100"
  city: London
  move_in_start: 2025-09-01T00:00:00Z
  move_in_end: 2025-09-30T00:00:00Z
  features: ["Dog Lover", "Night Owl"]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		update, _ := cmd.Flags().GetInt64("update")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading profile: %w", err)
		}
		var in profile.Registration
		if err := yaml.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("parsing profile: %w", err)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if update > 0 {
				if err := a.registrar.Update(ctx, update, in); err != nil {
					return err
				}
				printSuccess("updated user %d", update)
				return nil
			}
			id, err := a.registrar.Register(ctx, in)
			if err != nil {
				return err
			}
			printSuccess("registered user %d", id)
			return printJSON(cmd.OutOrStdout(), map[string]int64{"id": id})
		})
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register synthetic users for local experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("users")
		seed, _ := cmd.Flags().GetUint64("seed")
		city, _ := cmd.Flags().GetString("city")
		if count <= 0 {
			return fmt.Errorf("--users must be positive")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			rng := rand.New(rand.NewPCG(seed, seed))
			traits := a.registry.All()
			start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

			ids := make([]int64, 0, count)
			for i := 0; i < count; i++ {
				features := make([]string, 0, 5)
				for j := 0; j < 3+rng.IntN(3); j++ {
					features = append(features, traits[rng.IntN(len(traits))].Name)
				}
				moveIn := start.AddDate(0, 0, rng.IntN(30))
				id, err := a.registrar.Register(ctx, profile.Registration{
					Name:        fmt.Sprintf("user-%03d", i+1),
					Age:         20 + rng.IntN(15),
					Rent:        500 + 50*rng.IntN(15),
					AgeRange:    "+/- 5",
					RentRange:   "+/- 250",
					City:        city,
					MoveInStart: moveIn,
					MoveInEnd:   moveIn.AddDate(0, 1, 0),
					Features:    features,
					Duration:    "12 months",
				})
				if err != nil {
					return fmt.Errorf("seeding user %d: %w", i+1, err)
				}
				ids = append(ids, id)
			}
			printSuccess("seeded %d users in %s", len(ids), city)
			return printJSON(cmd.OutOrStdout(), map[string][]int64{"ids": ids})
		})
	},
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend USER_ID [USER_ID...]",
	Short: "Generate fresh recommendations and store them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("n")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if n <= 0 {
				n = a.service.Config.FullRunN
			}
			if len(ids) > 1 {
				if err := a.service.Refresh(ctx, ids, n, concurrency); err != nil {
					return err
				}
				printSuccess("refreshed recommendations for %d users", len(ids))
				return nil
			}
			out, err := a.service.Generate(ctx, ids[0], n)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), ids[0], out)
		})
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve USER_ID",
	Short: "Fold feedback into preferences and return ten fresh cards",
	Long: `Fold feedback into preferences and return ten fresh cards.

Example:
  roommatch serve 7 --feedback 12:liked,15:disliked,21:superliked`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("feedback")
		feedback, err := parseFeedback(raw)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out, err := a.service.Serve(ctx, id, feedback)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), id, out)
		})
	},
}

// parseFeedback 解析 "target:kind,target:kind" 形式的反馈列表。
func parseFeedback(s string) ([]preference.Feedback, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]preference.Feedback, 0, len(parts))
	for _, p := range parts {
		target, kind, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			return nil, fmt.Errorf("invalid feedback %q, want target:kind", p)
		}
		id, err := parseID(target)
		if err != nil {
			return nil, err
		}
		k, err := core.ParseInteractionKind(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, preference.Feedback{TargetID: id, Kind: k})
	}
	return out, nil
}

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check USER_ID",
	Short: "Show stored recommendations without recomputing them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out, err := a.service.Check(ctx, id)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), id, out)
		})
	},
}

// --- interact ---

var interactCmd = &cobra.Command{
	Use:   "interact ACTOR_ID TARGET_ID liked|disliked|superliked",
	Short: "Record an interaction and update the actor's preferences",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := parseID(args[0])
		if err != nil {
			return err
		}
		target, err := parseID(args[1])
		if err != nil {
			return err
		}
		kind, err := core.ParseInteractionKind(args[2])
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			out, err := a.recorder.Record(ctx, actor, target, kind)
			if err != nil {
				return err
			}
			if out.Inserted {
				if _, err := a.service.ApplyFeedback(ctx, actor, []preference.Feedback{{TargetID: target, Kind: kind}}); err != nil {
					return err
				}
			}
			if out.NewMatch {
				printSuccess("it's a match: %d <-> %d", actor, target)
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report REPORTER_ID REPORTED_ID",
	Short: "Report a user; removes any match between the two",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reporter, err := parseID(args[0])
		if err != nil {
			return err
		}
		reported, err := parseID(args[1])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.recorder.Report(ctx, reporter, reported, reason); err != nil {
				return err
			}
			printSuccess("reported user %d", reported)
			return nil
		})
	},
}

// --- matches ---

var matchesCmd = &cobra.Command{
	Use:   "matches USER_ID",
	Short: "List a user's matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		remove, _ := cmd.Flags().GetInt64("remove")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if remove > 0 {
				if err := a.recorder.RemoveMatch(ctx, id, remove); err != nil {
					return err
				}
				printSuccess("removed match %d <-> %d", id, remove)
			}
			views, err := a.recorder.Matches(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		})
	},
}

func init() {
	traitsCmd.AddCommand(traitsSetCmd)

	registerCmd.Flags().String("file", "", "YAML profile to register")
	registerCmd.Flags().Int64("update", 0, "update this existing user instead of registering a new one")

	seedCmd.Flags().Int("users", 50, "number of users to create")
	seedCmd.Flags().Uint64("seed", 1, "random seed")
	seedCmd.Flags().String("city", "London", "city for every seeded user")

	recommendCmd.Flags().Int("n", 0, "number of recommendations (default: full run size)")
	recommendCmd.Flags().Int("concurrency", 4, "users refreshed in parallel when several ids are given")

	serveCmd.Flags().String("feedback", "", "comma-separated target:kind pairs")

	reportCmd.Flags().String("reason", "", "free-text reason")

	matchesCmd.Flags().Int64("remove", 0, "remove the match with this user first")
}
