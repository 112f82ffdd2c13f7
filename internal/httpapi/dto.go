package httpapi

import (
	"strings"
	"time"

	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/domain"
)

// Requests.

type joinRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type submitRequest struct {
	Username   string            `json:"username" validate:"required"`
	Answers    map[string]string `json:"answers" validate:"required"`
	QuestionID questionID        `json:"questionId"`
}

type toggleRequest struct {
	Round    string `json:"round" validate:"required,oneof=lobby round1 round2"`
	State    bool   `json:"state"`
	Password string `json:"password"`
}

type textRoundRequest struct {
	domain.TextRoundContent
	TimerMinutes int    `json:"timerDuration" validate:"min=0,max=1440"`
	Password     string `json:"password"`
}

type imageRoundRequest struct {
	domain.ImageRoundContent
	TimerMinutes int    `json:"timerDuration" validate:"min=0,max=1440"`
	Password     string `json:"password"`
}

type competitionSecretRequest struct {
	NewPassword  string `json:"newPassword" validate:"required"`
	AuthPassword string `json:"authPassword"`
}

type changeAdminSecretRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type warnRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Password string `json:"password"`
}

type userRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// Responses.

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type foundResponse struct {
	Success bool `json:"success"`
	Found   bool `json:"found"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type kickedResponse struct {
	Kicked  bool   `json:"kicked"`
	Message string `json:"message"`
}

// timersDTO carries deadlines as epoch milliseconds.
type timersDTO struct {
	Round1EndTime *int64 `json:"round1EndTime"`
	Round2EndTime *int64 `json:"round2EndTime"`
}

type warningDTO struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type statusResponse struct {
	Rounds     domain.RoundFlags              `json:"rounds"`
	Timers     timersDTO                      `json:"timers"`
	TextConfig application.PublicTextContent  `json:"textConfig"`
	ImgConfig  application.PublicImageContent `json:"imgConfig"`
	Warning    *warningDTO                    `json:"warning"`
}

type joinResponse struct {
	Success    bool                           `json:"success"`
	Username   string                         `json:"username"`
	Rounds     domain.RoundFlags              `json:"rounds"`
	TextConfig application.PublicTextContent  `json:"textConfig"`
	ImgConfig  application.PublicImageContent `json:"imgConfig"`
	Timers     timersDTO                      `json:"timers"`
}

type submitResponse struct {
	Success    bool                                  `json:"success"`
	Results    map[string]application.QuestionResult `json:"results"`
	TotalScore float64                               `json:"totalScore"`
}

type clientDTO struct {
	domain.Participant
	Online bool `json:"isOnline"`
}

type standingDTO struct {
	domain.Participant
	Rank int `json:"rank"`
}

type adminConfigDTO struct {
	Version       uint64                   `json:"version"`
	Rounds        domain.RoundFlags        `json:"rounds"`
	TextConfig    domain.TextRoundContent  `json:"textRoundConfig"`
	ImgConfig     domain.ImageRoundContent `json:"imgRoundConfig"`
	Timers        timersDTO                `json:"timers"`
	GlobalWarning *warningDTO              `json:"globalWarning"`
}

type dashboardResponse struct {
	ConnectedCount int            `json:"connectedCount"`
	Clients        []clientDTO    `json:"clients"`
	Leaderboard    []standingDTO  `json:"leaderboard"`
	Config         adminConfigDTO `json:"config"`
}

type allTimeResponse struct {
	Total       int           `json:"total"`
	Leaderboard []standingDTO `json:"leaderboard"`
}

// Conversions.

func epochMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func toWarning(w *domain.Warning) *warningDTO {
	if w == nil {
		return nil
	}
	return &warningDTO{Message: w.Message, Timestamp: w.IssuedAt.UnixMilli()}
}

func toStatus(s application.RoundStatus) statusResponse {
	return statusResponse{
		Rounds:     s.Rounds,
		Timers:     timersDTO{Round1EndTime: epochMillis(s.Round1Deadline), Round2EndTime: epochMillis(s.Round2Deadline)},
		TextConfig: s.Text,
		ImgConfig:  s.Image,
		Warning:    toWarning(s.Warning),
	}
}

func toJoin(res application.JoinResult) joinResponse {
	st := toStatus(res.Status)
	return joinResponse{
		Success:    true,
		Username:   res.Participant.Username,
		Rounds:     st.Rounds,
		TextConfig: st.TextConfig,
		ImgConfig:  st.ImgConfig,
		Timers:     st.Timers,
	}
}

// toSubmit keys image results by the bare question number the image round
// submits with.
func toSubmit(round domain.Round, res application.SubmissionResult) submitResponse {
	out := submitResponse{
		Success:    true,
		Results:    make(map[string]application.QuestionResult, len(res.Results)),
		TotalScore: res.TotalScore,
	}
	for q, r := range res.Results {
		key := string(q)
		if round == domain.RoundImage {
			key = strings.TrimPrefix(key, "q")
		}
		out.Results[key] = r
	}
	return out
}

func toStandings(ss []domain.Standing) []standingDTO {
	out := make([]standingDTO, len(ss))
	for i, s := range ss {
		out[i] = standingDTO{Participant: s.Participant, Rank: s.Rank}
	}
	return out
}

func toDashboard(d application.Dashboard) dashboardResponse {
	clients := make([]clientDTO, len(d.Clients))
	for i, c := range d.Clients {
		clients[i] = clientDTO{Participant: c.Participant, Online: c.Online}
	}
	return dashboardResponse{
		ConnectedCount: d.Connected,
		Clients:        clients,
		Leaderboard:    toStandings(d.Leaderboard),
		Config: adminConfigDTO{
			Version:    d.Config.Version,
			Rounds:     d.Config.Rounds,
			TextConfig: d.Config.Round1,
			ImgConfig:  d.Config.Round2,
			Timers: timersDTO{
				Round1EndTime: epochMillis(d.Config.Round1Deadline),
				Round2EndTime: epochMillis(d.Config.Round2Deadline),
			},
			GlobalWarning: toWarning(d.Config.GlobalWarning),
		},
	}
}

// questionID accepts the filter as a JSON string or number.
type questionID string

func (q *questionID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*q = ""
		return nil
	}
	*q = questionID(strings.Trim(s, `"`))
	return nil
}
