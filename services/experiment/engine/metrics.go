// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sort"

	"github.com/praxislearn/splitengine/services/experiment/datatypes"
)

// ComputeVersionMetrics folds the participant set into the derived outcome
// summary for one arm. Metrics are never maintained as running totals; the
// participant records are the single source of truth, so a fold at read time
// cannot drift from them. At tens to low hundreds of participants per
// experiment the recomputation cost is irrelevant.
func ComputeVersionMetrics(participants []datatypes.Participant, v datatypes.VersionKey) datatypes.VersionMetrics {
	var m datatypes.VersionMetrics

	var competent, completed, abandoned, stuck int
	var satisfactionSum, satisfactionCount int
	var messages []int

	for i := range participants {
		p := &participants[i]
		if p.AssignedVersion != v {
			continue
		}
		m.SampleSize++
		if p.CompetencyAchieved {
			competent++
			if p.MessagesToCompetency > 0 {
				messages = append(messages, p.MessagesToCompetency)
			}
		}
		if p.Completed {
			completed++
		}
		if p.Abandoned {
			abandoned++
		}
		if p.GotStuck {
			stuck++
		}
		if p.SatisfactionScore > 0 {
			satisfactionSum += p.SatisfactionScore
			satisfactionCount++
		}
		switch p.FeedbackSentiment {
		case datatypes.SentimentNegative:
			m.NegativeFeedbackCount++
		case datatypes.SentimentVeryNegative:
			m.VeryNegativeFeedbackCount++
		}
	}

	if m.SampleSize == 0 {
		return m
	}
	n := float64(m.SampleSize)
	m.CompetencyRate = float64(competent) / n
	m.CompletionRate = float64(completed) / n
	m.DropoutRate = float64(abandoned) / n
	m.StuckRate = float64(stuck) / n
	if satisfactionCount > 0 {
		m.AvgSatisfaction = float64(satisfactionSum) / float64(satisfactionCount)
	}
	if len(messages) > 0 {
		sum := 0
		for _, c := range messages {
			sum += c
		}
		m.AvgMessagesToCompetency = float64(sum) / float64(len(messages))
		m.MedianMessagesToCompetency = median(messages)
	}
	return m
}

// median computes the median of counts, averaging the two middle values for
// even lengths. The input slice is not modified.
func median(counts []int) float64 {
	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
