package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PersonalityAnalysis is the strongly typed report. Only the schema completer
// constructs one; everything upstream of it works on untyped JSON trees.
type PersonalityAnalysis struct {
	ID                         string                `json:"id"`
	CreatedAt                  time.Time             `json:"createdAt"`
	Overview                   string                `json:"overview"`
	Traits                     []Trait               `json:"traits"`
	Intelligence               Intelligence          `json:"intelligence"`
	IntelligenceScore          float64               `json:"intelligenceScore"`
	EmotionalIntelligenceScore float64               `json:"emotionalIntelligenceScore"`
	CognitiveStyle             CognitiveStyle        `json:"cognitiveStyle"`
	EmotionalArchitecture      EmotionalArchitecture `json:"emotionalArchitecture"`
	InterpersonalDynamics      InterpersonalDynamics `json:"interpersonalDynamics"`
	CoreTraits                 CoreTraits            `json:"coreTraits"`
	CareerInsights             CareerInsights        `json:"careerInsights"`
	MotivationalProfile        MotivationalProfile   `json:"motivationalProfile"`
	GrowthPotential            GrowthPotential       `json:"growthPotential"`
}

type Trait struct {
	Trait             string   `json:"trait"`
	Score             float64  `json:"score"`
	Description       string   `json:"description"`
	Strengths         []string `json:"strengths"`
	Challenges        []string `json:"challenges"`
	GrowthSuggestions []string `json:"growthSuggestions"`
}

type Domain struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

type Intelligence struct {
	Type               string   `json:"type"`
	Score              float64  `json:"score"`
	Description        string   `json:"description"`
	Strengths          []string `json:"strengths"`
	AreasOfDevelopment []string `json:"areasOfDevelopment"`
	Domains            []Domain `json:"domains"`
}

type CognitiveStyle struct {
	Primary               string   `json:"primary"`
	Secondary             string   `json:"secondary"`
	Description           string   `json:"description"`
	Strengths             []string `json:"strengths"`
	Limitations           []string `json:"limitations"`
	LearningStyle         string   `json:"learningStyle"`
	DecisionMakingProcess string   `json:"decisionMakingProcess"`
}

type EmotionalArchitecture struct {
	EmotionalAwareness  string   `json:"emotionalAwareness"`
	RegulationStyle     string   `json:"regulationStyle"`
	EmpathicCapacity    string   `json:"empathicCapacity"`
	EmotionalTriggers   []string `json:"emotionalTriggers"`
	CopingMechanisms    []string `json:"copingMechanisms"`
	EmotionalStrengths  []string `json:"emotionalStrengths"`
	EmotionalChallenges []string `json:"emotionalChallenges"`
}

type InterpersonalDynamics struct {
	AttachmentStyle        string   `json:"attachmentStyle"`
	CommunicationPattern   string   `json:"communicationPattern"`
	ConflictResolution     string   `json:"conflictResolution"`
	RelationshipStrengths  []string `json:"relationshipStrengths"`
	RelationshipChallenges []string `json:"relationshipChallenges"`
	SocialNeeds            []string `json:"socialNeeds"`
}

type CoreTraits struct {
	Primary           string   `json:"primary"`
	Secondary         string   `json:"secondary"`
	Strengths         []string `json:"strengths"`
	Challenges        []string `json:"challenges"`
	AdaptabilityScore float64  `json:"adaptabilityScore"`
	ResilienceScore   float64  `json:"resilienceScore"`
}

type CareerInsights struct {
	NaturalStrengths     []string `json:"naturalStrengths"`
	WorkplaceNeeds       []string `json:"workplaceNeeds"`
	LeadershipStyle      string   `json:"leadershipStyle"`
	IdealWorkEnvironment string   `json:"idealWorkEnvironment"`
	CareerPathways       []string `json:"careerPathways"`
}

type MotivationalProfile struct {
	PrimaryDrivers   []string `json:"primaryDrivers"`
	SecondaryDrivers []string `json:"secondaryDrivers"`
	Inhibitors       []string `json:"inhibitors"`
	Values           []string `json:"values"`
	Aspirations      string   `json:"aspirations"`
	FearPatterns     string   `json:"fearPatterns"`
}

type GrowthPotential struct {
	DevelopmentAreas   []string `json:"developmentAreas"`
	Recommendations    []string `json:"recommendations"`
	ActionItems        []string `json:"actionItems"`
	LongTermTrajectory string   `json:"longTermTrajectory"`
	PotentialBlockers  []string `json:"potentialBlockers"`
}

// StoredAnalysis is the persisted record. Rows are never updated in place
// except by the upsert-by-assessment-id path used for resubmissions.
type StoredAnalysis struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID string         `gorm:"column:assessment_id;not null;uniqueIndex" json:"assessment_id"`
	UserID       string         `gorm:"column:user_id;index" json:"user_id"`
	Variant      string         `gorm:"column:variant" json:"variant"`
	AnalysisData datatypes.JSON `gorm:"type:jsonb;column:analysis_data" json:"analysis_data"`
	Degraded     bool           `gorm:"column:degraded;not null;default:false" json:"degraded"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (StoredAnalysis) TableName() string {
	return "personality_analysis"
}
