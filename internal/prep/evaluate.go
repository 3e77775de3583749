package prep

import (
	"github.com/ashureev/hope-map/internal/domain"
)

// EvalLabels is the class order used in evaluation reports.
var EvalLabels = []domain.Sentiment{domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative}

// ClassReport holds per-sentiment precision, recall and F1.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Evaluation compares model labels against hand labels.
type Evaluation struct {
	Labels []domain.Sentiment `json:"labels"`
	// Matrix[i][j] counts stories hand-labelled Labels[i] and predicted Labels[j].
	Matrix   [][]int                          `json:"confusion_matrix"`
	Classes  map[domain.Sentiment]ClassReport `json:"classes"`
	Accuracy float64                          `json:"accuracy"`
	Compared int                              `json:"compared"`
	// Unmatched lists hand-labelled stories with no model label.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Evaluate pairs hand-labelled stories with model-labelled ones by story ID.
// Labels are normalized with domain.ParseSentiment; anything unrecognized
// counts as neutral.
func Evaluate(manual, predicted []Story) Evaluation {
	index := make(map[domain.Sentiment]int, len(EvalLabels))
	for i, l := range EvalLabels {
		index[l] = i
	}

	byID := make(map[string]domain.Sentiment, len(predicted))
	for _, s := range predicted {
		byID[s.ID] = normalizeLabel(s.Sentiment)
	}

	ev := Evaluation{
		Labels:  EvalLabels,
		Matrix:  make([][]int, len(EvalLabels)),
		Classes: make(map[domain.Sentiment]ClassReport, len(EvalLabels)),
	}
	for i := range ev.Matrix {
		ev.Matrix[i] = make([]int, len(EvalLabels))
	}

	correct := 0
	for _, s := range manual {
		got, ok := byID[s.ID]
		if !ok {
			ev.Unmatched = append(ev.Unmatched, s.ID)
			continue
		}
		want := normalizeLabel(s.Sentiment)
		ev.Matrix[index[want]][index[got]]++
		ev.Compared++
		if want == got {
			correct++
		}
	}
	if ev.Compared > 0 {
		ev.Accuracy = float64(correct) / float64(ev.Compared)
	}

	for i, label := range EvalLabels {
		var actual, predictedAs int
		for j := range EvalLabels {
			actual += ev.Matrix[i][j]
			predictedAs += ev.Matrix[j][i]
		}
		tp := ev.Matrix[i][i]
		r := ClassReport{Support: actual}
		if predictedAs > 0 {
			r.Precision = float64(tp) / float64(predictedAs)
		}
		if actual > 0 {
			r.Recall = float64(tp) / float64(actual)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		ev.Classes[label] = r
	}
	return ev
}

func normalizeLabel(s domain.Sentiment) domain.Sentiment {
	parsed, err := domain.ParseSentiment(string(s))
	if err != nil {
		return domain.SentimentNeutral
	}
	return parsed
}
