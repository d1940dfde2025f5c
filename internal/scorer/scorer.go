package scorer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Default score bands used when no configured band matches.
const (
	defaultHighMax   = 60
	defaultMediumMax = 85
	errorScoreFloor  = 40
)

// Scorer turns check results and extracted fields into a ScoreResult.
type Scorer struct {
	cfg  reporttype.Scoring
	base float64
}

// New validates the scoring configuration and returns a scorer.
func New(cfg reporttype.Scoring) (*Scorer, error) {
	base := cfg.Base()
	if base < 0 || base > 100 {
		return nil, fmt.Errorf("invalid base score %v: must be between 0 and 100", base)
	}
	return &Scorer{cfg: cfg, base: base}, nil
}

// Calculate applies deduction rules and failed-check deductions to the base score.
func (s *Scorer) Calculate(checks []models.CheckResult, fields map[string]any) models.ScoreResult {
	if fields == nil {
		fields = map[string]any{}
	}
	result := models.ScoreResult{
		BaseScore:      s.base,
		Deductions:     []models.DeductionDetail{},
		TriggeredRules: []string{},
	}
	score := s.base
	triggered := map[string]struct{}{}

	for _, rule := range s.cfg.Deductions {
		occurrences, err := evaluate(rule.Condition, checks, fields)
		if err != nil {
			s.ruleError(&result, rule.Condition, err)
			continue
		}
		points := deduction(rule, occurrences)
		if points <= 0 {
			continue
		}
		score -= points
		result.TotalDeductions += points
		result.Deductions = append(result.Deductions, models.DeductionDetail{
			Condition:   rule.Condition,
			Description: rule.Description,
			Points:      points,
		})
		triggered[rule.Condition] = struct{}{}
	}

	for _, check := range checks {
		if check.Passed || check.PointsDeducted <= 0 {
			continue
		}
		score -= check.PointsDeducted
		result.TotalDeductions += check.PointsDeducted
		result.Deductions = append(result.Deductions, models.DeductionDetail{
			Check:    check.Name,
			Severity: check.Severity,
			Points:   check.PointsDeducted,
		})
	}

	result.Score = clamp(score)
	result.RiskLevel = s.riskLevel(&result, checks, fields)
	result.Status = status(result.Score, result.RiskLevel, checks)

	for rule := range triggered {
		result.TriggeredRules = append(result.TriggeredRules, rule)
	}
	sort.Strings(result.TriggeredRules)
	return result
}

func deduction(rule reporttype.Deduction, occurrences int) float64 {
	if occurrences <= 0 {
		return 0
	}
	if !rule.PerOccurrence {
		return rule.Points
	}
	points := rule.Points * float64(occurrences)
	if rule.MaxDeduction != nil && points > *rule.MaxDeduction {
		points = *rule.MaxDeduction
	}
	return points
}

func (s *Scorer) riskLevel(result *models.ScoreResult, checks []models.CheckResult, fields map[string]any) models.RiskLevel {
	levels := s.cfg.RiskLevels
	if levels.Critical != nil && s.anyTriggered(result, levels.Critical.Triggers, checks, fields) {
		return models.RiskCritical
	}
	if levels.High != nil && s.anyTriggered(result, levels.High.Triggers, checks, fields) {
		return models.RiskHigh
	}

	score := result.Score
	switch {
	case levels.High.Contains(score):
		return models.RiskHigh
	case levels.Medium.Contains(score):
		return models.RiskMedium
	case levels.Low.Contains(score):
		return models.RiskLow
	}

	switch {
	case score <= defaultHighMax:
		return models.RiskHigh
	case score <= defaultMediumMax:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (s *Scorer) anyTriggered(result *models.ScoreResult, triggers []string, checks []models.CheckResult, fields map[string]any) bool {
	for _, trigger := range triggers {
		occurrences, err := evaluate(trigger, checks, fields)
		if err != nil {
			s.ruleError(result, trigger, err)
			continue
		}
		if occurrences > 0 {
			return true
		}
	}
	return false
}

func (s *Scorer) ruleError(result *models.ScoreResult, condition string, err error) {
	slog.Warn("failed to evaluate scoring condition",
		slog.String("condition", condition),
		slog.String("error", err.Error()),
	)
	result.RuleErrors = append(result.RuleErrors, models.RuleError{
		Condition: condition,
		Reason:    err.Error(),
	})
}

func status(score float64, level models.RiskLevel, checks []models.CheckResult) models.Status {
	for _, check := range checks {
		if !check.Passed && check.Severity == models.SeverityHigh {
			return models.StatusError
		}
	}
	switch level {
	case models.RiskCritical:
		return models.StatusError
	case models.RiskHigh:
		if score < errorScoreFloor {
			return models.StatusError
		}
		return models.StatusLimited
	case models.RiskMedium:
		return models.StatusLimited
	default:
		return models.StatusOK
	}
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
