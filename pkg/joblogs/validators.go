package joblogs

type ListJobLogsQuery struct {
	AfterID   *int     `query:"after_id" json:"after_id,omitempty"`
	Level     []string `query:"level" json:"level,omitempty" validate:"dive,oneof=info warn error fatal"`
	RequestID *int     `query:"request_id" json:"request_id,omitempty" validate:"omitempty,min=1"`
}

type ListRequestLogsQuery struct {
	AfterID *int     `query:"after_id" json:"after_id,omitempty"`
	Level   []string `query:"level" json:"level,omitempty" validate:"dive,oneof=info warn error fatal"`
	Limit   int      `query:"limit" json:"limit,omitempty" default:"200" validate:"min=1,max=1000"`
}
