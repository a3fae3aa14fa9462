package jobqueue

// Job はワーカーが一度だけ実行する作業単位
type Job func()

// Kind はメッセージの種類を表す
type Kind int

const (
	// KindJob は実行すべきジョブを運ぶ
	KindJob Kind = iota
	// KindTerminate はワーカー1つに停止を伝える
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindJob:
		return "Job"
	case KindTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// Message はジョブまたは終了シグナルのどちらかを表す
type Message struct {
	kind Kind
	job  Job
}

// NewJob はジョブを運ぶメッセージを作成する
func NewJob(job Job) Message {
	return Message{kind: KindJob, job: job}
}

// Terminate は終了シグナル（ポイズンピル）を作成する
func Terminate() Message {
	return Message{kind: KindTerminate}
}

// Kind はメッセージの種類を返す
func (m Message) Kind() Kind {
	return m.kind
}

// IsTerminate は終了シグナルかどうかを返す
func (m Message) IsTerminate() bool {
	return m.kind == KindTerminate
}

// Job は運んでいるジョブを返す（終了シグナルの場合は nil）
func (m Message) Job() Job {
	return m.job
}
