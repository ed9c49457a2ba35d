package decision

import (
	"fmt"
	"sort"
	"strings"

	"tradecouncil/internal/logger"
)

const reasonNoVotes = "no parseable votes"

// Aggregate reduces admitted votes to one Decision. Ratings are summed per
// action so that both agreement and conviction count; ties go to the earlier
// action in BUY, SELL, HOLD, WAIT. The result depends only on the vote set,
// not on the order of votes. Votes with an unknown action or a rating
// outside [MinRating, MaxRating] are not admitted.
func Aggregate(symbol string, size float64, votes []Vote) Decision {
	votes = admitted(votes)
	if len(votes) == 0 {
		return Decision{Action: ActionWait, Symbol: symbol, Confidence: 0, Reason: reasonNoVotes}
	}

	grouped := make(map[Action][]Vote, len(actionPriority))
	for _, v := range votes {
		grouped[v.Action] = append(grouped[v.Action], v)
	}
	totals := make(map[Action]float64, len(actionPriority))
	for _, a := range actionPriority {
		sortVotes(grouped[a])
		for _, v := range grouped[a] {
			totals[a] += v.Rating
		}
	}

	best := actionPriority[0]
	for _, a := range actionPriority[1:] {
		if totals[a] > totals[best] {
			best = a
		}
	}
	winners := grouped[best]
	confidence := 0.0
	if len(winners) > 0 {
		confidence = totals[best] / float64(len(winners)) / MaxRating
	}

	if !best.IsTrade() {
		size = 0
	}
	return Decision{
		Action:     best,
		Symbol:     symbol,
		Size:       size,
		Confidence: confidence,
		Reason:     voteReason(grouped, totals, best),
	}
}

func admitted(votes []Vote) []Vote {
	out := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if a, ok := ParseAction(string(v.Action)); !ok || a != v.Action {
			logger.Warnf("aggregate: vote from %s dropped, unknown action %q", v.ProviderID, v.Action)
			continue
		}
		if !(v.Rating >= MinRating && v.Rating <= MaxRating) {
			logger.Warnf("aggregate: vote from %s dropped, rating %v out of range", v.ProviderID, v.Rating)
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortVotes(vs []Vote) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].ProviderID != vs[j].ProviderID {
			return vs[i].ProviderID < vs[j].ProviderID
		}
		return vs[i].Rating < vs[j].Rating
	})
}

func voteReason(grouped map[Action][]Vote, totals map[Action]float64, best Action) string {
	var b strings.Builder
	b.WriteString("votes:")
	for _, a := range actionPriority {
		parts := make([]string, 0, len(grouped[a]))
		for _, v := range grouped[a] {
			parts = append(parts, fmt.Sprintf("%s=%s", v.ProviderID, formatNumber(v.Rating)))
		}
		fmt.Fprintf(&b, " %s[%s]", a, strings.Join(parts, ","))
	}
	b.WriteString(" | totals:")
	for _, a := range actionPriority {
		fmt.Fprintf(&b, " %s=%s", a, formatNumber(totals[a]))
	}
	fmt.Fprintf(&b, " | winner %s", best)
	return b.String()
}
