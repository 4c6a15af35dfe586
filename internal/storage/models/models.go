package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表
type Candidate struct {
	CandidateID     string          `gorm:"type:char(36);primaryKey"`
	PrimaryName     string          `gorm:"type:varchar(255)"`
	PrimaryPhone    string          `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	PrimaryEmail    string          `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	Gender          string          `gorm:"type:varchar(10)"`
	BirthDate       *datatypes.Date `gorm:"type:date"`
	CurrentLocation string          `gorm:"type:varchar(255)"`
	ProfileSummary  string          `gorm:"type:text"`
	CreatedAt       time.Time       `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time       `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// ResumeSubmission 简历提交/快照表
type ResumeSubmission struct {
	SubmissionUUID      string         `gorm:"type:char(36);primaryKey"`
	CandidateID         *string        `gorm:"type:char(36);index:idx_rs_candidate_id"` // 可空，候选人删除时置NULL
	SubmissionTimestamp time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_rs_submission_timestamp"`
	SourceChannel       string         `gorm:"type:varchar(100)"`
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string         `gorm:"type:varchar(1024)"`
	MarkdownPathOSS     string         `gorm:"type:varchar(1024)"`
	RawFileMD5          string         `gorm:"type:char(32);index:idx_rs_raw_file_md5"`
	RenderedTextMD5     string         `gorm:"type:char(32);index:idx_rs_rendered_text_md5"`
	ParsedResumeJSON    datatypes.JSON `gorm:"type:json"`
	SourceResumeID      string         `gorm:"type:varchar(100)"` // 嵌入数据中携带的来源简历标识
	ResumeIdentifier    string         `gorm:"type:varchar(255)"` // name_phone 组合，便于人工排查
	ProcessingStatus    string         `gorm:"type:varchar(50);default:'UPLOADED';index:idx_rs_processing_status"`
	ProcessingError     string         `gorm:"type:text"`
	ParserVersion       string         `gorm:"type:varchar(50)"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (ResumeSubmission) TableName() string {
	return "resume_submissions"
}

// ResumeExport 导出记录表，每次导出生成一个嵌入了结构化数据的PDF副本
type ResumeExport struct {
	ExportID       uint64    `gorm:"primaryKey;autoIncrement"`
	SubmissionUUID string    `gorm:"type:char(36);not null;index:idx_re_submission_uuid"`
	ExportPathOSS  string    `gorm:"type:varchar(1024);not null"`
	PayloadVersion string    `gorm:"type:varchar(20)"`
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	ResumeSubmission *ResumeSubmission `gorm:"foreignKey:SubmissionUUID;references:SubmissionUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ResumeExport) TableName() string {
	return "resume_exports"
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
