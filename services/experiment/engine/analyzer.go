// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
	"github.com/praxislearn/splitengine/services/experiment/observability"
)

// significanceAlpha is the two-sided significance threshold.
const significanceAlpha = 0.05

// z95 is the critical value for a 95% confidence interval.
const z95 = 1.959963984540054

// Analyze computes a fresh statistical comparison between the arms and
// appends it to the experiment's analysis history. Analyses are immutable
// once recorded; the history is the audit trail.
//
// An under-powered sample is not an error: the analysis is still produced
// with statistical_significance forced false and the p-value flagged
// unreliable via sample_size_sufficient, so dashboards are warned rather
// than blocked.
func (e *Engine) Analyze(ctx context.Context, id string) (*datatypes.Analysis, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Analyze")
	defer span.End()

	var result datatypes.Analysis
	_, err := e.store.Update(ctx, id, func(exp *datatypes.Experiment) error {
		result = BuildAnalysis(exp, e.clock.Now().UTC())
		exp.AnalysisHistory = append(exp.AnalysisHistory, result)
		exp.LatestAnalysis = &result
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.AnalysesTotal.WithLabelValues(fmt.Sprintf("%t", result.StatisticalSignificance)).Inc()
	e.log.Info("analysis recorded",
		"experiment_id", id,
		"p_value", result.PValue,
		"rate_difference", result.RateDifference,
		"significant", result.StatisticalSignificance,
		"winner", result.Winner)
	return &result, nil
}

// BuildAnalysis is the pure analysis computation: identical participant
// records always produce an identical Analysis apart from the timestamp.
func BuildAnalysis(exp *datatypes.Experiment, now time.Time) datatypes.Analysis {
	control := ComputeVersionMetrics(exp.Participants, datatypes.VersionControl)
	variant := ComputeVersionMetrics(exp.Participants, datatypes.VersionVariant)

	diff := variant.CompetencyRate - control.CompetencyRate
	pValue, ci := twoProportionTest(control, variant, diff)

	sufficient := control.SampleSize >= exp.MinSampleForSignificance &&
		variant.SampleSize >= exp.MinSampleForSignificance
	significant := sufficient && pValue < significanceAlpha

	winner := datatypes.WinnerNoDifference
	if significant {
		if diff > 0 {
			winner = datatypes.WinnerVariant
		} else if diff < 0 {
			winner = datatypes.WinnerControl
		}
	}

	// A statistically significant competency improvement never overrides a
	// worse learner-experience signal on the variant.
	feedbackAcceptable := variant.VeryNegativeFeedbackCount <= control.VeryNegativeFeedbackCount &&
		variant.NegativeFeedbackCount+variant.VeryNegativeFeedbackCount <=
			control.NegativeFeedbackCount+control.VeryNegativeFeedbackCount
	shouldDeploy := winner == datatypes.WinnerVariant && feedbackAcceptable

	a := datatypes.Analysis{
		AnalyzedAt:              now,
		Control:                 control,
		Variant:                 variant,
		RateDifference:          diff,
		PValue:                  pValue,
		ConfidenceInterval:      ci,
		StatisticalSignificance: significant,
		SampleSizeSufficient:    sufficient,
		Winner:                  winner,
		ShouldDeployWinner:      shouldDeploy,
	}
	a.Recommendation = recommendation(exp, a, feedbackAcceptable)
	return a
}

// twoProportionTest runs the standard two-sample z-test for proportions with
// pooled variance on the competency rates and returns the two-sided p-value
// plus a 95% confidence interval (unpooled) for the rate difference.
func twoProportionTest(control, variant datatypes.VersionMetrics, diff float64) (float64, [2]float64) {
	n1 := float64(control.SampleSize)
	n2 := float64(variant.SampleSize)
	if n1 == 0 || n2 == 0 {
		return 1, [2]float64{}
	}
	p1 := control.CompetencyRate
	p2 := variant.CompetencyRate

	pooled := (p1*n1 + p2*n2) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))

	pValue := 1.0
	if se > 0 {
		z := diff / se
		pValue = math.Erfc(math.Abs(z) / math.Sqrt2)
	}

	ciSE := math.Sqrt(p1*(1-p1)/n1 + p2*(1-p2)/n2)
	ci := [2]float64{diff - z95*ciSE, diff + z95*ciSE}
	return pValue, ci
}

// recommendation renders the analysis for a human reviewer. Text only; no
// side effects and nothing downstream parses it.
func recommendation(exp *datatypes.Experiment, a datatypes.Analysis, feedbackAcceptable bool) string {
	if !a.SampleSizeSufficient {
		return fmt.Sprintf(
			"Sample too small for significance (control %d, variant %d, minimum %d per version). "+
				"The computed p-value of %.4f is unreliable; keep the experiment running.",
			a.Control.SampleSize, a.Variant.SampleSize, exp.MinSampleForSignificance, a.PValue)
	}
	switch a.Winner {
	case datatypes.WinnerVariant:
		base := fmt.Sprintf(
			"The variant improved the competency rate by %.1f points (%.1f%% to %.1f%%, p=%.4f).",
			a.RateDifference*100, a.Control.CompetencyRate*100, a.Variant.CompetencyRate*100, a.PValue)
		if feedbackAcceptable {
			return base + " Deploying the variant is recommended."
		}
		return base + " However, learner feedback on the variant is worse than on the control; do not deploy without review."
	case datatypes.WinnerControl:
		return fmt.Sprintf(
			"The control outperformed the variant by %.1f points (%.1f%% vs %.1f%%, p=%.4f). Do not adopt the change.",
			-a.RateDifference*100, a.Control.CompetencyRate*100, a.Variant.CompetencyRate*100, a.PValue)
	default:
		return fmt.Sprintf(
			"No statistically significant difference between versions (rate difference %.1f points, p=%.4f). Keep the control.",
			a.RateDifference*100, a.PValue)
	}
}
