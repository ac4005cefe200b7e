package entry

import "fmt"

// Payload is the kind-specific body of an entry. Each kind has exactly
// one payload struct; Kind reports which.
type Payload interface {
	Kind() Kind
}

// DecodePayload decodes raw bytes into the payload struct for kind,
// using the caller's unmarshal function (json.Unmarshal,
// msgpack.Unmarshal, ...). The switch is exhaustive over the kind set;
// a kind added without a case here fails loudly at decode time.
func DecodePayload(kind Kind, data []byte, unmarshal func([]byte, any) error) (Payload, error) {
	switch kind {
	case KindRequest:
		return decodeAs[RequestPayload](data, unmarshal)
	case KindQuery:
		return decodeAs[QueryPayload](data, unmarshal)
	case KindException:
		return decodeAs[ExceptionPayload](data, unmarshal)
	case KindLog:
		return decodeAs[LogPayload](data, unmarshal)
	case KindCache:
		return decodeAs[CachePayload](data, unmarshal)
	case KindEvent:
		return decodeAs[EventPayload](data, unmarshal)
	case KindJob:
		return decodeAs[JobPayload](data, unmarshal)
	case KindMail:
		return decodeAs[MailPayload](data, unmarshal)
	case KindSchedule:
		return decodeAs[SchedulePayload](data, unmarshal)
	case KindClientRequest:
		return decodeAs[ClientRequestPayload](data, unmarshal)
	case KindKeyValue:
		return decodeAs[KeyValuePayload](data, unmarshal)
	case KindModel:
		return decodeAs[ModelPayload](data, unmarshal)
	case KindNotification:
		return decodeAs[NotificationPayload](data, unmarshal)
	case KindView:
		return decodeAs[ViewPayload](data, unmarshal)
	case KindCommand:
		return decodeAs[CommandPayload](data, unmarshal)
	case KindAuthCheck:
		return decodeAs[AuthCheckPayload](data, unmarshal)
	case KindBatch:
		return decodeAs[BatchPayload](data, unmarshal)
	case KindDump:
		return decodeAs[DumpPayload](data, unmarshal)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeAs[P Payload](data []byte, unmarshal func([]byte, any) error) (Payload, error) {
	var p P
	if err := unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
