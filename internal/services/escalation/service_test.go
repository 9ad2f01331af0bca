package escalation

import (
	"context"
	"errors"
	"testing"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/state"
)

type stubSteps struct {
	current enums.Step
	sets    []enums.Step
	guarded [][]enums.Step
}

func (s *stubSteps) Current(ctx context.Context, userID int64) (enums.Step, error) {
	return s.current, nil
}

func (s *stubSteps) Set(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error) {
	s.sets = append(s.sets, next)
	s.guarded = append(s.guarded, expected)
	s.current = next
	return true, nil
}

type stubProfiles struct {
	profile model.Profile
	phones  []string
}

func (s *stubProfiles) Get(ctx context.Context, userID int64) (model.Profile, error) {
	return s.profile, nil
}

func (s *stubProfiles) SetPhone(ctx context.Context, userID int64, phone string) error {
	s.phones = append(s.phones, phone)
	return nil
}

type stubMessages struct {
	texts []string
}

func (s *stubMessages) ListRecentUserTexts(ctx context.Context, userID int64, limit int) ([]string, error) {
	return s.texts, nil
}

type createdTask struct {
	taskType enums.TaskType
	userID   int64
	payload  any
}

type stubTasks struct {
	created []createdTask
	err     error
}

func (s *stubTasks) CreateTask(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error) {
	if s.err != nil {
		return model.AdminTask{}, s.err
	}
	s.created = append(s.created, createdTask{taskType: taskType, userID: userID, payload: payload})
	return model.AdminTask{ID: int64(len(s.created)), Type: taskType, UserID: userID}, nil
}

type stubBanner struct {
	banned []int64
	chats  []int64
	err    error
}

func (s *stubBanner) BanChatMember(ctx context.Context, chatID, userID int64) error {
	if s.err != nil {
		return s.err
	}
	s.chats = append(s.chats, chatID)
	s.banned = append(s.banned, userID)
	return nil
}

func newTestService(t *testing.T, deps Dependencies) *Service {
	t.Helper()
	if deps.State == nil {
		deps.State = state.NewMemory()
	}
	if deps.Steps == nil {
		deps.Steps = &stubSteps{current: enums.StepIdle}
	}
	return NewService(deps, []string{"firib", "Pul qaytar", "shikoyat"}, "[OPERATOR]", -100200, nil)
}

func TestTriggeredByTextMatchesKeywords(t *testing.T) {
	svc := newTestService(t, Dependencies{})

	cases := []struct {
		text string
		want bool
	}{
		{"Bu firibgarlik-ku!", true},
		{"PUL QAYTARING menga", true},
		{"Shikoyat qilmoqchiman", true},
		{"Salom, e'lon joylamoqchiman", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := svc.TriggeredByText(tc.text); got != tc.want {
			t.Fatalf("TriggeredByText(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIsSentinel(t *testing.T) {
	svc := newTestService(t, Dependencies{})

	if !svc.IsSentinel("  [OPERATOR]\n") {
		t.Fatalf("expected trimmed sentinel to match")
	}
	if svc.IsSentinel("operator kerak") {
		t.Fatalf("ordinary text must not read as sentinel")
	}

	blank := NewService(Dependencies{State: state.NewMemory(), Steps: &stubSteps{}}, nil, "", 0, nil)
	if blank.IsSentinel("") {
		t.Fatalf("empty sentinel must never match")
	}
}

func TestEscalatePausesAndFilesTask(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	steps := &stubSteps{current: enums.StepAwaitingPaymentConfirm}
	profiles := &stubProfiles{profile: model.Profile{UserID: 7, FirstName: "Gulnora", Phone: "+998901112233"}}
	tasks := &stubTasks{}

	svc := newTestService(t, Dependencies{State: store, Steps: steps, Profiles: profiles, Tasks: tasks})

	if err := svc.Escalate(ctx, 7, "bu firibgarlik", ReasonKeyword); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	paused, err := store.IsPaused(ctx, 7)
	if err != nil || !paused {
		t.Fatalf("expected paused dialog, got paused=%v err=%v", paused, err)
	}
	if len(steps.sets) != 1 || steps.sets[0] != enums.StepEscalatedToAdmin {
		t.Fatalf("expected escalated step write, got %v", steps.sets)
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks.created))
	}

	payload, ok := tasks.created[0].payload.(model.EscalationTaskPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", tasks.created[0].payload)
	}
	if payload.Text != "bu firibgarlik" || payload.Reason != ReasonKeyword {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.DeepLink != "tg://user?id=7" {
		t.Fatalf("unexpected deep link %q", payload.DeepLink)
	}
	if payload.DisplayName != "Gulnora" || payload.Phone != "+998901112233" {
		t.Fatalf("identity not resolved: %+v", payload)
	}
}

func TestEscalateSurvivesTaskFailure(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	tasks := &stubTasks{err: errors.New("insert failed")}

	svc := newTestService(t, Dependencies{State: store, Tasks: tasks})

	if err := svc.Escalate(ctx, 11, "shikoyat", ReasonKeyword); err != nil {
		t.Fatalf("Escalate must not fail on task insert: %v", err)
	}
	paused, _ := store.IsPaused(ctx, 11)
	if !paused {
		t.Fatalf("pause must stand even when the task insert fails")
	}
}

func TestEscalateMinesPhoneFromHistory(t *testing.T) {
	ctx := context.Background()
	profiles := &stubProfiles{profile: model.Profile{UserID: 9, FirstName: "Olim"}}
	messages := &stubMessages{texts: []string{"yo'q", "mening raqamim +998 90 123 45 67 edi"}}
	tasks := &stubTasks{}

	svc := newTestService(t, Dependencies{Profiles: profiles, Messages: messages, Tasks: tasks})

	if err := svc.Escalate(ctx, 9, "pul qaytar", ReasonKeyword); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	payload := tasks.created[0].payload.(model.EscalationTaskPayload)
	if payload.Phone != "+998901234567" {
		t.Fatalf("expected mined phone, got %q", payload.Phone)
	}
	if len(profiles.phones) != 1 || profiles.phones[0] != "+998901234567" {
		t.Fatalf("mined phone not persisted: %v", profiles.phones)
	}
}

func TestResumeClearsFlagsAndBuffer(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	steps := &stubSteps{current: enums.StepEscalatedToAdmin}

	if err := store.SetPaused(ctx, 5, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if err := store.SetBlocked(ctx, 5, true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	if _, err := store.AppendPending(ctx, 5, "eski xabar"); err != nil {
		t.Fatalf("AppendPending: %v", err)
	}

	svc := newTestService(t, Dependencies{State: store, Steps: steps})

	if err := svc.Resume(ctx, 5); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if paused, _ := store.IsPaused(ctx, 5); paused {
		t.Fatalf("dialog still paused after resume")
	}
	if blocked, _ := store.IsBlocked(ctx, 5); blocked {
		t.Fatalf("dialog still blocked after resume")
	}
	pending, _, err := store.PendingSnapshot(ctx, 5)
	if err != nil {
		t.Fatalf("PendingSnapshot: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("stale buffer survived resume: %v", pending)
	}

	if len(steps.sets) == 0 || steps.sets[0] != enums.StepIdle {
		t.Fatalf("expected guarded idle write, got %v", steps.sets)
	}
	if len(steps.guarded[0]) != 1 || steps.guarded[0][0] != enums.StepEscalatedToAdmin {
		t.Fatalf("idle write must be guarded by the escalated step, got %v", steps.guarded[0])
	}
}

func TestBlockSetsLocalFlagsAndReportsBanFailure(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	banner := &stubBanner{err: errors.New("not enough rights")}

	svc := newTestService(t, Dependencies{State: store, Banner: banner})

	result, err := svc.Block(ctx, 13)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if result.Banned {
		t.Fatalf("ban reported as applied despite failure")
	}
	if result.BanErr == nil {
		t.Fatalf("ban failure must surface in the result")
	}

	if blocked, _ := store.IsBlocked(ctx, 13); !blocked {
		t.Fatalf("local block flag not set")
	}
	if paused, _ := store.IsPaused(ctx, 13); !paused {
		t.Fatalf("blocked dialog must also be paused")
	}
}

func TestBlockBansFromPublicChat(t *testing.T) {
	ctx := context.Background()
	banner := &stubBanner{}

	svc := newTestService(t, Dependencies{State: state.NewMemory(), Banner: banner})

	result, err := svc.Block(ctx, 21)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !result.Banned || result.BanErr != nil {
		t.Fatalf("expected clean ban, got %+v", result)
	}
	if len(banner.chats) != 1 || banner.chats[0] != -100200 {
		t.Fatalf("ban targeted wrong chat: %v", banner.chats)
	}
	if banner.banned[0] != 21 {
		t.Fatalf("ban targeted wrong user: %v", banner.banned)
	}
}

func TestMinePhone(t *testing.T) {
	cases := []struct {
		name  string
		texts []string
		want  string
	}{
		{"spaced international", []string{"raqamim +998 90 123 45 67"}, "+998901234567"},
		{"national digits", []string{"tel: 90 123 45 67"}, "+998901234567"},
		{"newest text wins", []string{"+998 91 765 43 21 ga yozing", "eski raqam +998 90 123 45 67"}, "+998917654321"},
		{"garbage digits skipped", []string{"buyurtma 123456789012345 raqami"}, ""},
		{"no digits", []string{"salom", "yaxshimisiz"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MinePhone(tc.texts); got != tc.want {
				t.Fatalf("MinePhone(%v) = %q, want %q", tc.texts, got, tc.want)
			}
		})
	}
}
