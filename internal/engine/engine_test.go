package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintline/internal/daterange"
	"maintline/internal/db"
	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/migrate"
	"maintline/internal/repo"
	"maintline/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	env := &testEnv{Ctx: context.Background(), now: time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)}
	env.Engine = engine.New(conn, daterange.Calendar{Location: time.UTC, WeekStart: time.Sunday})
	env.Engine.Now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) at(t time.Time) { env.now = t }

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) machine(t *testing.T, name string) domain.MachineSummary {
	t.Helper()
	m, err := env.Engine.CreateMachine(env.Ctx, name, "")
	require.NoError(t, err)
	return domain.MachineSummary{Code: m.Code, Name: m.Name}
}

func (env *testEnv) activity(t *testing.T, machine int64, typ domain.ActivityType, freq *int, items ...string) domain.Activity {
	t.Helper()
	a, err := env.Engine.CreateActivity(env.Ctx, engine.CreateActivityOptions{
		MachineCode: machine, Name: string(typ) + " task", Type: typ, FrequencyHours: freq, CheckItems: items,
	})
	require.NoError(t, err)
	return a
}

func (env *testEnv) workOrder(t *testing.T, machine int64, activity *int64) domain.WorkOrder {
	t.Helper()
	w, err := env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{MachineCode: machine, ActivityCode: activity, ActorID: "tester"})
	require.NoError(t, err)
	return w
}

var doing = workflow.DoingPayload{
	State:                domain.StateDoing,
	SecurityMeasures:     []domain.SecurityMeasure{{Description: "lockout"}},
	ProtectionEquipments: []string{"gloves"},
}

// toDoing walks a PLANNED order up to DOING.
func (env *testEnv) toDoing(t *testing.T, code int64) domain.WorkOrder {
	t.Helper()
	_, err := env.Engine.UpdateWorkOrder(env.Ctx, code, workflow.ValidatedPayload{State: domain.StateValidated}, "tester")
	require.NoError(t, err)
	w, err := env.Engine.UpdateWorkOrder(env.Ctx, code, doing, "tester")
	require.NoError(t, err)
	return w
}

func ptr[T any](v T) *T { return &v }

func TestWorkOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "press")
	act := env.activity(t, m.Code, domain.ActivityInspection, nil, "oil level", "belt tension")
	w := env.workOrder(t, m.Code, &act.Code)

	assert.Equal(t, domain.StatePlanned, w.State)
	assert.Equal(t, domain.PriorityNormal, w.Priority)
	require.NotNil(t, w.NextState)
	assert.Equal(t, domain.StateValidated, *w.NextState)
	assert.Equal(t, "press", w.MachineName)

	_, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.Error(t, err)
	assert.Equal(t, engine.KindPolicy, engine.KindOf(err))

	w = env.toDoing(t, w.Code)
	require.NotNil(t, w.StartDate)
	assert.Equal(t, env.now, *w.StartDate)
	assert.Equal(t, []string{"gloves"}, w.ProtectionEquipments)

	env.advance(90 * time.Minute)
	w, err = env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State: domain.StateDone,
		CheckListVerified: []domain.CheckListVerification{
			{CheckItemID: act.CheckItems[0].ID, Verified: true},
			{CheckItemID: act.CheckItems[1].ID, Verified: false, Note: "worn"},
		},
	}, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, w.State)
	assert.Nil(t, w.NextState)
	require.NotNil(t, w.TotalHours)
	assert.Equal(t, 2, *w.TotalHours)
	require.NotNil(t, w.EndDate)
	assert.Equal(t, env.now, *w.EndDate)
	require.Len(t, w.CheckListVerified, 2)
	assert.Equal(t, "worn", w.CheckListVerified[1].Note)

	_, err = env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	assert.Equal(t, engine.KindPolicy, engine.KindOf(err))
}

func TestUpdateRefusesAnythingButTheNextState(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "lathe")
	w := env.workOrder(t, m.Code, nil)

	for _, p := range []workflow.Payload{
		workflow.PlannedPayload{State: domain.StatePlanned},
		doing,
		workflow.DonePayload{State: domain.StateDone},
	} {
		_, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, p, "tester")
		assert.Equal(t, engine.KindPolicy, engine.KindOf(err), "target %s", p.Target())
	}
	got, err := env.Engine.GetWorkOrder(env.Ctx, w.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePlanned, got.State)

	_, err = env.Engine.UpdateWorkOrder(env.Ctx, 999, workflow.ValidatedPayload{State: domain.StateValidated}, "tester")
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

func TestCompletionTotalHoursWithoutCheckList(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "mill")
	w := env.workOrder(t, m.Code, nil)
	env.toDoing(t, w.Code)
	env.advance(3 * time.Hour)
	end := env.now.Add(-time.Hour)
	got, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone, EndDate: &end}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 3, *got.TotalHours)
	assert.Equal(t, end, *got.EndDate)
}

func TestFailureCauseOnlyKeptForCorrective(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "pump")
	corrective := env.activity(t, m.Code, domain.ActivityCorrective, nil)
	inspection := env.activity(t, m.Code, domain.ActivityInspection, nil, "seal")

	c := env.workOrder(t, m.Code, &corrective.Code)
	i := env.workOrder(t, m.Code, &inspection.Code)
	for _, code := range []int64{c.Code, i.Code} {
		env.toDoing(t, code)
	}
	cause := "bearing failure"
	done := workflow.DonePayload{State: domain.StateDone, FailureCause: &cause}

	got, err := env.Engine.UpdateWorkOrder(env.Ctx, c.Code, done, "tester")
	require.NoError(t, err)
	require.NotNil(t, got.FailureCause)
	assert.Equal(t, cause, *got.FailureCause)

	got, err = env.Engine.UpdateWorkOrder(env.Ctx, i.Code, done, "tester")
	require.NoError(t, err)
	assert.Nil(t, got.FailureCause)
}

func TestCheckListIgnoredOutsideInspection(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "saw")
	w := env.workOrder(t, m.Code, nil)
	env.toDoing(t, w.Code)
	got, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State:             domain.StateDone,
		CheckListVerified: []domain.CheckListVerification{{CheckItemID: 42, Verified: true}},
	}, "tester")
	require.NoError(t, err)
	assert.Empty(t, got.CheckListVerified)
}

func TestCheckItemFromAnotherActivityIsRejected(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "oven")
	a := env.activity(t, m.Code, domain.ActivityInspection, nil, "door")
	b := env.activity(t, m.Code, domain.ActivityInspection, nil, "fan")
	w := env.workOrder(t, m.Code, &a.Code)
	env.toDoing(t, w.Code)
	_, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State:             domain.StateDone,
		CheckListVerified: []domain.CheckListVerification{{CheckItemID: b.CheckItems[0].ID, Verified: true}},
	}, "tester")
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	got, err := env.Engine.GetWorkOrder(env.Ctx, w.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDoing, got.State)
}

func TestPreventiveCompletionPlansOneDraft(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "compressor")
	recurring := env.activity(t, m.Code, domain.ActivityPlannedPreventive, ptr(48))
	oneOff := env.activity(t, m.Code, domain.ActivityPlannedPreventive, nil)

	w := env.workOrder(t, m.Code, &recurring.Code)
	env.toDoing(t, w.Code)
	env.advance(time.Hour)
	done, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)

	other := env.workOrder(t, m.Code, &oneOff.Code)
	env.toDoing(t, other.Code)
	_, err = env.Engine.UpdateWorkOrder(env.Ctx, other.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)

	planned := done.EndDate.Add(48 * time.Hour)
	drafts, err := env.Engine.ListDrafts(env.Ctx, planned)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, planned, drafts[0].PlannedDay)
	assert.Equal(t, w.Code, drafts[0].WorkOrderCode)
	assert.Equal(t, "compressor", drafts[0].MachineName)
	assert.Equal(t, domain.PriorityNormal, drafts[0].Priority)
}

func TestPromoteDraft(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "boiler")
	eng, err := env.Engine.CreateEngine(env.Ctx, m.Code, "burner")
	require.NoError(t, err)
	act := env.activity(t, m.Code, domain.ActivityPlannedPreventive, ptr(24))
	w, err := env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{
		MachineCode: m.Code, EngineCode: &eng.Code, ActivityCode: &act.Code, Priority: domain.PriorityImportant,
	})
	require.NoError(t, err)
	env.toDoing(t, w.Code)
	done, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)

	drafts, err := env.Engine.ListDrafts(env.Ctx, done.EndDate.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	promoted, err := env.Engine.PromoteDraft(env.Ctx, drafts[0].Code, domain.PriorityUrgent, "tester")
	require.NoError(t, err)
	assert.NotEqual(t, w.Code, promoted.Code)
	assert.Equal(t, domain.StatePlanned, promoted.State)
	assert.Equal(t, domain.PriorityUrgent, promoted.Priority)
	require.NotNil(t, promoted.EngineFunction)
	assert.Equal(t, "burner", *promoted.EngineFunction)
	require.NotNil(t, promoted.ActivityType)
	assert.Equal(t, domain.ActivityPlannedPreventive, *promoted.ActivityType)

	_, err = env.Engine.PromoteDraft(env.Ctx, drafts[0].Code, domain.PriorityUrgent, "tester")
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
	assert.Equal(t, engine.KindNotFound, engine.KindOf(env.Engine.DeleteDraft(env.Ctx, drafts[0].Code, "tester")))
}

func TestPromoteDraftKeepsOriginPriority(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "chiller")
	act := env.activity(t, m.Code, domain.ActivityPlannedPreventive, ptr(48))
	w, err := env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{
		MachineCode: m.Code, ActivityCode: &act.Code, Priority: domain.PriorityImportant,
	})
	require.NoError(t, err)
	env.toDoing(t, w.Code)
	done, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)
	drafts, err := env.Engine.ListDrafts(env.Ctx, done.EndDate.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	_, err = env.Engine.PromoteDraft(env.Ctx, drafts[0].Code, "SOON", "tester")
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	promoted, err := env.Engine.PromoteDraft(env.Ctx, drafts[0].Code, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityImportant, promoted.Priority)
}

func TestDeleteWorkOrder(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "crane")
	open := env.workOrder(t, m.Code, nil)
	closed := env.workOrder(t, m.Code, nil)
	env.toDoing(t, closed.Code)
	_, err := env.Engine.UpdateWorkOrder(env.Ctx, closed.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)

	err = env.Engine.DeleteWorkOrder(env.Ctx, closed.Code, "tester")
	assert.Equal(t, engine.KindPolicy, engine.KindOf(err))

	require.NoError(t, env.Engine.DeleteWorkOrder(env.Ctx, open.Code, "tester"))
	_, err = env.Engine.GetWorkOrder(env.Ctx, open.Code)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
	assert.Equal(t, engine.KindNotFound, engine.KindOf(env.Engine.DeleteWorkOrder(env.Ctx, open.Code, "tester")))
}

func TestWorkOrderCodesAreNeverReused(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "robot")
	first := env.workOrder(t, m.Code, nil)
	require.NoError(t, env.Engine.DeleteWorkOrder(env.Ctx, first.Code, "tester"))
	second := env.workOrder(t, m.Code, nil)
	assert.Equal(t, first.Code+1, second.Code)

	count, err := env.Engine.CountWorkOrders(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Code, count.Current)
	require.Len(t, count.Machines, 1)
	assert.Equal(t, "robot", count.Machines[0].Name)
}

func TestCreateWorkOrderReferences(t *testing.T) {
	env := newTestEnv(t)
	a := env.machine(t, "a")
	b := env.machine(t, "b")
	engB, err := env.Engine.CreateEngine(env.Ctx, b.Code, "drive")
	require.NoError(t, err)

	_, err = env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{MachineCode: 99})
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
	_, err = env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{MachineCode: a.Code, EngineCode: ptr(int64(77))})
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
	_, err = env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{MachineCode: a.Code, EngineCode: &engB.Code})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	_, err = env.Engine.CreateWorkOrder(env.Ctx, engine.CreateWorkOrderOptions{MachineCode: a.Code, Priority: "LOW"})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

func TestStoreRevivedAfterSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "conveyor")
	s, err := env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "belt", Unit: "pcs", Amount: 4, MinimumAmount: 2})
	require.NoError(t, err)

	_, err = env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "belt", Unit: "pcs", Amount: 1})
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))

	require.NoError(t, env.Engine.DeleteStore(env.Ctx, s.ID, "tester"))
	list, err := env.Engine.ListStores(env.Ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	revived, err := env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "belt", Unit: "m", Amount: 10, MinimumAmount: 2})
	require.NoError(t, err)
	assert.Equal(t, s.ID, revived.ID)

	list, err = env.Engine.ListStores(env.Ctx, m.Code)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 10.0, list[0].Amount)
	assert.Equal(t, "m", list[0].Unit)

	assert.Equal(t, engine.KindNotFound, engine.KindOf(env.Engine.DeleteStore(env.Ctx, 404, "tester")))
}

func TestCompletionConsumesStores(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "loader")
	_, err := env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "filter", Unit: "pcs", Amount: 3, MinimumAmount: 2})
	require.NoError(t, err)

	w := env.workOrder(t, m.Code, nil)
	env.toDoing(t, w.Code)
	done, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State:  domain.StateDone,
		Stores: []domain.StoreConsumption{{Name: "filter", Amount: 2}},
	}, "tester")
	require.NoError(t, err)
	require.Len(t, done.StoresConsumed, 1)
	assert.Equal(t, 2.0, done.StoresConsumed[0].Amount)

	list, err := env.Engine.ListStores(env.Ctx, m.Code)
	require.NoError(t, err)
	assert.Equal(t, 1.0, list[0].Amount)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 20, repo.EventFilter{Type: "store.below_minimum"})
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestFailedConsumptionRollsBackTransition(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "mixer")
	_, err := env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "blade", Unit: "pcs", Amount: 5})
	require.NoError(t, err)
	w := env.workOrder(t, m.Code, nil)
	env.toDoing(t, w.Code)

	_, err = env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State:  domain.StateDone,
		Stores: []domain.StoreConsumption{{Name: "blade", Amount: 2}, {Name: "missing", Amount: 1}},
	}, "tester")
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	_, err = env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{
		State:  domain.StateDone,
		Stores: []domain.StoreConsumption{{Name: "blade", Amount: 6}},
	}, "tester")
	assert.Equal(t, engine.KindPolicy, engine.KindOf(err))

	got, err := env.Engine.GetWorkOrder(env.Ctx, w.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDoing, got.State)
	assert.Empty(t, got.StoresConsumed)
	list, err := env.Engine.ListStores(env.Ctx, m.Code)
	require.NoError(t, err)
	assert.Equal(t, 5.0, list[0].Amount)
}

func TestConcurrentCompletionsNeverOverdrawStore(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "press")
	_, err := env.Engine.CreateStore(env.Ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "oil", Unit: "l", Amount: 5})
	require.NoError(t, err)
	first := env.workOrder(t, m.Code, nil)
	second := env.workOrder(t, m.Code, nil)
	env.toDoing(t, first.Code)
	env.toDoing(t, second.Code)

	payload := workflow.DonePayload{State: domain.StateDone, Stores: []domain.StoreConsumption{{Name: "oil", Amount: 4}}}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, code := range []int64{first.Code, second.Code} {
		wg.Add(1)
		go func(i int, code int64) {
			defer wg.Done()
			_, errs[i] = env.Engine.UpdateWorkOrder(env.Ctx, code, payload, "tester")
		}(i, code)
	}
	wg.Wait()

	var ok, refused int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case engine.KindOf(err) == engine.KindPolicy:
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)
	list, err := env.Engine.ListStores(env.Ctx, m.Code)
	require.NoError(t, err)
	assert.Equal(t, 1.0, list[0].Amount)
}

func TestConcurrentTransitionsAdvanceOnce(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "drill")
	w := env.workOrder(t, m.Code, nil)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.ValidatedPayload{State: domain.StateValidated}, "tester")
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.Equal(t, engine.KindPolicy, engine.KindOf(err))
		}
	}
	assert.Equal(t, 1, ok)
}

func TestListWorkOrdersWindow(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "kiln")

	env.at(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	openOld := env.workOrder(t, m.Code, nil)
	doneOld := env.workOrder(t, m.Code, nil)
	env.toDoing(t, doneOld.Code)
	_, err := env.Engine.UpdateWorkOrder(env.Ctx, doneOld.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
	require.NoError(t, err)

	env.at(time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC))
	current := env.workOrder(t, m.Code, nil)

	opts, err := env.Engine.ParseListOptions("MONTHLY", "2024-04-15")
	require.NoError(t, err)
	list, err := env.Engine.ListWorkOrders(env.Ctx, opts)
	require.NoError(t, err)
	codes := []int64{}
	for _, w := range list {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int64{openOld.Code, current.Code}, codes)

	_, err = env.Engine.ParseListOptions("DAILY", "")
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	_, err = env.Engine.ParseListOptions("", "15/04/2024")
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

func TestScheduleStrictAndLenient(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "line 1")
	day := func(d int) *time.Time { v := time.Date(2023, 4, d, 10, 0, 0, 0, time.UTC); return &v }

	env.at(time.Date(2023, 3, 20, 9, 0, 0, 0, time.UTC))
	backlogOld := env.workOrder(t, m.Code, nil)
	env.at(time.Date(2023, 4, 3, 9, 0, 0, 0, time.UTC))
	backlog := env.workOrder(t, m.Code, nil)
	planned := env.workOrder(t, m.Code, nil)
	nextWeek := env.workOrder(t, m.Code, nil)
	flagged := env.workOrder(t, m.Code, nil)
	env.at(time.Date(2023, 4, 17, 9, 0, 0, 0, time.UTC))
	thisWeek := env.workOrder(t, m.Code, nil)
	env.at(time.Date(2023, 5, 2, 9, 0, 0, 0, time.UTC))
	env.workOrder(t, m.Code, nil)

	_, err := env.Engine.SetOnSchedule(env.Ctx, planned.Code, engine.ScheduleUpdate{DaySchedule: day(18)})
	require.NoError(t, err)
	_, err = env.Engine.SetOnSchedule(env.Ctx, nextWeek.Code, engine.ScheduleUpdate{DaySchedule: day(25)})
	require.NoError(t, err)
	got, err := env.Engine.SetOnSchedule(env.Ctx, flagged.Code, engine.ScheduleUpdate{DaySchedule: day(19), OnSchedule: ptr(true)})
	require.NoError(t, err)
	assert.Nil(t, got.DaySchedule)

	ref := time.Date(2023, 4, 16, 0, 0, 0, 0, time.UTC)
	strict, err := env.Engine.GetSchedule(env.Ctx, ref, true)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, planned.Code, strict[0].Code)
	assert.True(t, *strict[0].OnSchedule)

	lenient, err := env.Engine.GetSchedule(env.Ctx, ref, false)
	require.NoError(t, err)
	on := map[int64]bool{}
	for _, w := range lenient {
		on[w.Code] = *w.OnSchedule
	}
	assert.Equal(t, map[int64]bool{
		backlogOld.Code: false,
		backlog.Code:    false,
		planned.Code:    true,
		nextWeek.Code:   true,
		flagged.Code:    true,
		thisWeek.Code:   true,
	}, on)
	assert.Len(t, lenient, 6)
}

func TestLenientScheduleKeepsBacklogPlannedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "press")
	env.at(time.Date(2023, 4, 3, 9, 0, 0, 0, time.UTC))
	w := env.workOrder(t, m.Code, nil)
	later := time.Date(2023, 4, 25, 10, 0, 0, 0, time.UTC)
	_, err := env.Engine.SetOnSchedule(env.Ctx, w.Code, engine.ScheduleUpdate{DaySchedule: &later})
	require.NoError(t, err)

	ref := time.Date(2023, 4, 16, 0, 0, 0, 0, time.UTC)
	strict, err := env.Engine.GetSchedule(env.Ctx, ref, true)
	require.NoError(t, err)
	assert.Empty(t, strict)

	lenient, err := env.Engine.GetSchedule(env.Ctx, ref, false)
	require.NoError(t, err)
	require.Len(t, lenient, 1)
	assert.Equal(t, w.Code, lenient[0].Code)
	require.NotNil(t, lenient[0].OnSchedule)
	assert.True(t, *lenient[0].OnSchedule)
}

func TestSetOnScheduleValidation(t *testing.T) {
	env := newTestEnv(t)
	m := env.machine(t, "m")
	w := env.workOrder(t, m.Code, nil)
	_, err := env.Engine.SetOnSchedule(env.Ctx, w.Code, engine.ScheduleUpdate{})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	_, err = env.Engine.SetOnSchedule(env.Ctx, 404, engine.ScheduleUpdate{OnSchedule: ptr(true)})
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

func TestIndicatorsGroupByMachine(t *testing.T) {
	env := newTestEnv(t)
	a := env.machine(t, "alpha")
	b := env.machine(t, "beta")

	env.at(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	complete := func(machine int64, hours int) {
		w := env.workOrder(t, machine, nil)
		env.toDoing(t, w.Code)
		env.advance(time.Duration(hours) * time.Hour)
		_, err := env.Engine.UpdateWorkOrder(env.Ctx, w.Code, workflow.DonePayload{State: domain.StateDone}, "tester")
		require.NoError(t, err)
	}
	complete(a.Code, 2)
	complete(b.Code, 5)
	complete(a.Code, 1)
	env.workOrder(t, a.Code, nil)

	groups, err := env.Engine.GetIndicators(env.Ctx, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, b.Code, groups[0].MachineCode)
	assert.Equal(t, 5, groups[0].Hours)
	assert.Equal(t, a.Code, groups[1].MachineCode)
	assert.Equal(t, 3, groups[1].Hours)
	assert.Len(t, groups[1].WorkOrders, 3)
	for _, g := range groups {
		sum := 0
		for _, w := range g.WorkOrders {
			if w.TotalHours != nil {
				sum += *w.TotalHours
			}
		}
		assert.Equal(t, g.Hours, sum)
	}

	strict, err := env.Engine.GetIndicators(env.Ctx, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	assert.Empty(t, strict)
}

func TestParseCode(t *testing.T) {
	code, err := engine.ParseCode("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), code)
	for _, bad := range []string{"", "abc", "-1", "0", "1.5"} {
		_, err := engine.ParseCode(bad)
		assert.Equal(t, engine.KindValidation, engine.KindOf(err), bad)
	}
}
