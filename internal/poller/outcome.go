package poller

// OutcomeKind - вид итогового результата сессии опроса.
type OutcomeKind string

const (
	OutcomeReady    OutcomeKind = "ready"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// ReasonSucceededWithoutArtifact - причина для успешного статуса без ссылки на артефакт.
const ReasonSucceededWithoutArtifact = "succeeded without artifact"

// Outcome - единственный результат сессии опроса.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	ArtifactURL string      `json:"artifactUrl,omitempty"` // Только для ready
	Reason      string      `json:"reason,omitempty"`      // Только для failed
	RawStatus   string      `json:"rawStatus,omitempty"`   // Статус провайдера как есть, для диагностики
	Attempts    int         `json:"attempts"`              // Сколько раз был вызван fetcher
}

// IsReady возвращает true для успешного результата с артефактом.
func (o Outcome) IsReady() bool {
	return o.Kind == OutcomeReady
}

func ready(url, raw string, attempts int) Outcome {
	return Outcome{Kind: OutcomeReady, ArtifactURL: url, RawStatus: raw, Attempts: attempts}
}

func failed(reason, raw string, attempts int) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason, RawStatus: raw, Attempts: attempts}
}

func timedOut(attempts int) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Attempts: attempts}
}
