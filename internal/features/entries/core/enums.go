package entries_core

type EntryType string

const (
	EntryTypeBatch         EntryType = "batch"
	EntryTypeCache         EntryType = "cache"
	EntryTypeClientRequest EntryType = "client_request"
	EntryTypeCommand       EntryType = "command"
	EntryTypeDump          EntryType = "dump"
	EntryTypeEvent         EntryType = "event"
	EntryTypeException     EntryType = "exception"
	EntryTypeGate          EntryType = "gate"
	EntryTypeJob           EntryType = "job"
	EntryTypeLog           EntryType = "log"
	EntryTypeMail          EntryType = "mail"
	EntryTypeModel         EntryType = "model"
	EntryTypeNotification  EntryType = "notification"
	EntryTypeQuery         EntryType = "query"
	EntryTypeRedis         EntryType = "redis"
	EntryTypeRequest       EntryType = "request"
	EntryTypeSchedule      EntryType = "schedule"
	EntryTypeView          EntryType = "view"
)

func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeBatch, EntryTypeCache, EntryTypeClientRequest, EntryTypeCommand,
		EntryTypeDump, EntryTypeEvent, EntryTypeException, EntryTypeGate,
		EntryTypeJob, EntryTypeLog, EntryTypeMail, EntryTypeModel,
		EntryTypeNotification, EntryTypeQuery, EntryTypeRedis, EntryTypeRequest,
		EntryTypeSchedule, EntryTypeView:
		return true
	default:
		return false
	}
}
