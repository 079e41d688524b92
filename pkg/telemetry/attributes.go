package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Протокол / кадр
	AttrProtocol   = "frame.protocol"
	AttrDeviceID   = "frame.device_id"
	AttrFrameBytes = "frame.bytes"

	// Конвейер позиций
	AttrPartition  = "pipeline.partition"
	AttrPipelineOp = "pipeline.operation"

	// Команды
	AttrCommandType     = "command.type"
	AttrCommandPriority = "command.priority"
	AttrCommandStatus   = "command.status"
	AttrCommandRetries  = "command.retries"

	// Хаб подписок
	AttrHubTopic     = "hub.topic"
	AttrHubSessionID = "hub.session_id"

	// Валидация
	AttrValidationLevel  = "validation.level"
	AttrValidationErrors = "validation.errors"
	AttrValidationPassed = "validation.passed"
)

// FrameAttributes возвращает атрибуты декодированного кадра протокола.
func FrameAttributes(protocol, deviceID string, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProtocol, protocol),
		attribute.String(AttrDeviceID, deviceID),
		attribute.Int(AttrFrameBytes, size),
	}
}

// PipelineAttributes возвращает атрибуты обработки позиции воркером партиции.
func PipelineAttributes(partition int, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrPartition, partition),
		attribute.String(AttrPipelineOp, operation),
	}
}

// CommandAttributes возвращает атрибуты отправки команды устройству.
func CommandAttributes(commandType, priority, status string, retries int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCommandType, commandType),
		attribute.String(AttrCommandPriority, priority),
		attribute.String(AttrCommandStatus, status),
		attribute.Int(AttrCommandRetries, retries),
	}
}

// HubAttributes возвращает атрибуты публикации в сессию хаба подписок.
func HubAttributes(topic, sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrHubTopic, topic),
		attribute.String(AttrHubSessionID, sessionID),
	}
}

// ValidationAttributes возвращает атрибуты валидации
func ValidationAttributes(level string, errorsCount int, passed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrValidationLevel, level),
		attribute.Int(AttrValidationErrors, errorsCount),
		attribute.Bool(AttrValidationPassed, passed),
	}
}
