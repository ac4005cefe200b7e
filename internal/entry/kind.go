package entry

// Kind identifies which payload struct an entry carries. The set is
// closed: storage encodes the kind as a plain string, and decode
// refuses kinds it does not know.
type Kind string

const (
	KindRequest       Kind = "request"
	KindQuery         Kind = "query"
	KindException     Kind = "exception"
	KindLog           Kind = "log"
	KindCache         Kind = "cache"
	KindEvent         Kind = "event"
	KindJob           Kind = "job"
	KindMail          Kind = "mail"
	KindSchedule      Kind = "schedule"
	KindClientRequest Kind = "client_request"
	KindKeyValue      Kind = "kv_op"
	KindModel         Kind = "model_op"
	KindNotification  Kind = "notification"
	KindView          Kind = "view"
	KindCommand       Kind = "command"
	KindAuthCheck     Kind = "auth_check"
	KindBatch         Kind = "batch_op"
	KindDump          Kind = "dump"
)

// Kinds returns every kind in stable order.
func Kinds() []Kind {
	return []Kind{
		KindRequest,
		KindQuery,
		KindException,
		KindLog,
		KindCache,
		KindEvent,
		KindJob,
		KindMail,
		KindSchedule,
		KindClientRequest,
		KindKeyValue,
		KindModel,
		KindNotification,
		KindView,
		KindCommand,
		KindAuthCheck,
		KindBatch,
		KindDump,
	}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindRequest, KindQuery, KindException, KindLog, KindCache,
		KindEvent, KindJob, KindMail, KindSchedule, KindClientRequest,
		KindKeyValue, KindModel, KindNotification, KindView, KindCommand,
		KindAuthCheck, KindBatch, KindDump:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
