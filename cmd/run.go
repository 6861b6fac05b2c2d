package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/henrikfb/mailsift/internal/model"
)

var (
	runEmailID     string
	runAccessToken string
	runAgentFile   string
	runCriteria    string
	runFields      string
	runFollowLinks bool
	runMaxLinks    int
	runStrategy    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extraction for a single email",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		agentCfg, err := loadAgentConfig(cmd)
		if err != nil {
			return err
		}

		token := runAccessToken
		if token == "" {
			token = os.Getenv("MAILSIFT_GMAIL_TOKEN")
		}
		if token == "" {
			return eris.New("access token required (--access-token or MAILSIFT_GMAIL_TOKEN)")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Run(ctx, agentCfg, token, runEmailID)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.String("email_id", run.EmailID),
			zap.Bool("matched", run.Result.Matched),
			zap.Int("matched_units", run.Result.TotalMatchedUnits),
			zap.Float64("confidence", run.Result.OverallConfidence),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Result)
	},
}

// loadAgentConfig reads the agent file if given and applies flag overrides
// from the invoked command.
func loadAgentConfig(cmd *cobra.Command) (model.AgentConfig, error) {
	var agentCfg model.AgentConfig

	if runAgentFile != "" {
		data, err := os.ReadFile(runAgentFile)
		if err != nil {
			return agentCfg, eris.Wrap(err, "read agent config")
		}
		if err := yaml.Unmarshal(data, &agentCfg); err != nil {
			return agentCfg, eris.Wrap(err, "parse agent config")
		}
	}

	if runCriteria != "" {
		agentCfg.MatchCriteria = runCriteria
	}
	if runFields != "" {
		agentCfg.ExtractionFields = runFields
	}
	if cmdFlagChanged(cmd, "follow-links") {
		agentCfg.FollowLinks = runFollowLinks
	}
	if runMaxLinks > 0 {
		agentCfg.MaxLinksToScrape = runMaxLinks
	}
	if runStrategy != "" {
		agentCfg.Strategy = model.RetrievalStrategy(runStrategy)
	}
	return agentCfg, nil
}

func cmdFlagChanged(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func init() {
	runCmd.Flags().StringVar(&runEmailID, "email-id", "", "provider email ID (required)")
	runCmd.Flags().StringVar(&runAccessToken, "access-token", "", "mail provider OAuth token")
	runCmd.Flags().StringVar(&runAgentFile, "agent", "", "agent config YAML file")
	runCmd.Flags().StringVar(&runCriteria, "criteria", "", "match criteria (overrides agent file)")
	runCmd.Flags().StringVar(&runFields, "fields", "", "extraction fields (overrides agent file)")
	runCmd.Flags().BoolVar(&runFollowLinks, "follow-links", false, "retrieve linked pages")
	runCmd.Flags().IntVar(&runMaxLinks, "max-links", 0, "max links to retrieve")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "retrieval strategy: fetch-only, search-only, fetch-and-search")
	_ = runCmd.MarkFlagRequired("email-id")
	rootCmd.AddCommand(runCmd)
}
