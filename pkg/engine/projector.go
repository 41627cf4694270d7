package engine

import (
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// FanOutMode controls how query rows become outbound messages.
type FanOutMode string

const (
	FanOutIndividual FanOutMode = "individual"
	FanOutBatch      FanOutMode = "batch"
)

// ParseFanOutMode maps a node setting to a mode. Anything other than
// "batch" is individual.
func ParseFanOutMode(s string) FanOutMode {
	if FanOutMode(s) == FanOutBatch {
		return FanOutBatch
	}
	return FanOutIndividual
}

// Project turns a successful outcome into outbound messages.
//
// Individual mode sends one message per row, in row order, and nothing for
// zero rows. Batch mode sends exactly one message holding every row. An
// update always produces a single {count: N} message. Failures produce none.
func Project(outcome Outcome, mode FanOutMode) []models.Message {
	switch out := outcome.(type) {
	case *QueryResult:
		if mode == FanOutBatch {
			rows := out.Rows
			if rows == nil {
				rows = []map[string]any{}
			}
			return []models.Message{models.NewMessage(rows)}
		}
		msgs := make([]models.Message, 0, len(out.Rows))
		for _, row := range out.Rows {
			msgs = append(msgs, models.NewMessage(row))
		}
		return msgs

	case *UpdateResult:
		return []models.Message{models.NewMessage(map[string]any{"count": out.Count})}

	default:
		return nil
	}
}
