package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// ScoreReport is what `aegisctl score` prints.
type ScoreReport struct {
	Risk      models.RiskAssessment `json:"risk" yaml:"risk"`
	Anomalies []models.Anomaly      `json:"anomalies" yaml:"anomalies"`
	Decision  models.Decision       `json:"decision" yaml:"decision"`
}

func newScoreCmd() *cobra.Command {
	var sessionFile, profileFile string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a recorded session against a security profile",
		Example: `  aegisctl score --session session.json --profile profile.json
  aegisctl score -s session.json -o text`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var session models.SessionContext
			if err := readJSONFile(sessionFile, &session); err != nil {
				return err
			}
			if err := utils.ValidateStruct(&session); err != nil {
				return err
			}
			if session.Timestamp.IsZero() {
				session.Timestamp = time.Now().UTC()
			}

			profile := models.NewSecurityProfile(session.IdentityID)
			if profileFile != "" {
				if err := readJSONFile(profileFile, profile); err != nil {
					return err
				}
			}

			log, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(log)
			if err != nil {
				return err
			}
			report := Score(cfg.Risk, cfg.Decision, session, profile, log)
			return render(cmd.OutOrStdout(), report, report.writeText)
		},
	}
	cmd.Flags().StringVarP(&sessionFile, "session", "s", "", "session context JSON file")
	cmd.Flags().StringVarP(&profileFile, "profile", "p", "", "security profile JSON file (empty profile when omitted)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// Score runs the same evaluators the server uses, without enrichment.
func Score(riskCfg config.RiskConfig, decisionCfg config.DecisionConfig, s models.SessionContext, p *models.SecurityProfile, log logger.Logger) ScoreReport {
	risk := service.NewRiskEngine(riskCfg).Score(s, p)
	anomalies := service.NewAnomalyDetector().Detect(s, p)
	decision := service.NewDecisionMachine(decisionCfg, log).Decide(s, risk, p)
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	return ScoreReport{Risk: risk, Anomalies: anomalies, Decision: decision}
}

func (r ScoreReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "score:    %d (%s)\n", r.Risk.Score, r.Risk.Level)
	for _, f := range r.Risk.Factors {
		fmt.Fprintf(w, "  +%-3d %s %s\n", f.Weight, f.Name, f.Detail)
	}
	fmt.Fprintf(w, "decision: %s (%s)\n", r.Decision.Action, r.Decision.Reason)
	if r.Decision.Challenge != nil {
		fmt.Fprintf(w, "  challenge: %s\n", strings.Join(r.Decision.Challenge.Factors, ", "))
	}
	if len(r.Anomalies) == 0 {
		fmt.Fprintln(w, "anomalies: none")
		return
	}
	fmt.Fprintln(w, "anomalies:")
	for _, a := range r.Anomalies {
		fmt.Fprintf(w, "  %s [%s]\n", a.Type, a.Severity)
	}
}

func init() {
	rootCmd.AddCommand(newScoreCmd())
}
