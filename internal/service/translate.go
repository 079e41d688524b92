package service

import (
	"strings"

	"fleettrack/internal/domain"
	"fleettrack/internal/rpc"
	"fleettrack/pkg/apperror"
)

func parsePriority(s string) (domain.Priority, error) {
	switch strings.ToUpper(s) {
	case "", "NORMAL":
		return domain.PriorityNormal, nil
	case "LOW":
		return domain.PriorityLow, nil
	case "HIGH":
		return domain.PriorityHigh, nil
	case "CRITICAL":
		return domain.PriorityCritical, nil
	default:
		return 0, apperror.New(apperror.CodeInvalidArgument, "unknown priority: "+s)
	}
}

func commandResponse(cmd *domain.Command) *rpc.CommandResponse {
	return &rpc.CommandResponse{
		ID:          cmd.ID,
		DeviceID:    cmd.DeviceID,
		Type:        string(cmd.Type),
		Priority:    cmd.Priority.String(),
		Status:      string(cmd.Status),
		RetryCount:  cmd.RetryCount,
		Response:    cmd.Response,
		Error:       cmd.Error,
		CreatedAt:   cmd.CreatedAt,
		SentAt:      cmd.SentAt,
		DeliveredAt: cmd.DeliveredAt,
		ExecutedAt:  cmd.ExecutedAt,
	}
}

func templateResponse(t *domain.CommandTemplate) *rpc.TemplateResponse {
	return &rpc.TemplateResponse{
		ID:         t.ID,
		Name:       t.Name,
		Type:       string(t.Type),
		Priority:   t.Priority.String(),
		Params:     t.Params,
		MaxRetries: t.MaxRetries,
		UsageCount: t.UsageCount,
	}
}

func scheduledCommandResponse(s *domain.ScheduledCommand) *rpc.ScheduledCommandResponse {
	return &rpc.ScheduledCommandResponse{
		ID:           s.ID,
		DeviceID:     s.DeviceID,
		TemplateID:   s.TemplateID,
		EarliestAt:   s.EarliestAt,
		RepeatsFired: s.RepeatsFired,
		Active:       s.Active,
	}
}
