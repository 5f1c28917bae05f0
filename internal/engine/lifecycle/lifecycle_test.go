package lifecycle_test

import (
	"errors"
	"strings"
	"testing"

	"humantask/internal/domain"
	"humantask/internal/engine/auth"
	"humantask/internal/engine/lifecycle"
)

var (
	bobba = domain.Actor{UserID: "Bobba Fet"}
	darth = domain.Actor{UserID: "Darth Vader"}
	luke  = domain.Actor{UserID: "Luke Cage"}
	admin = domain.Actor{UserID: "Administrator"}
	crusa = domain.Actor{UserID: "Tony Stark", GroupIDs: []string{"Crusaders"}}
)

func newTask(status domain.Status, owner *domain.Actor, owners ...domain.OrganizationalEntity) domain.Task {
	t := domain.Task{ID: 7}
	t.Status = status
	t.Skipable = true
	t.PotentialOwners = owners
	t.BusinessAdministrators = domain.EntityList{domain.User(admin.UserID)}
	t.Document = domain.EmptyRef()
	t.Output = domain.EmptyRef()
	t.Fault = domain.EmptyRef()
	if owner != nil {
		e := owner.Entity()
		t.ActualOwner = &e
	}
	return t
}

func mustApply(t *testing.T, task domain.Task, cmd lifecycle.Command) domain.Task {
	t.Helper()
	next, err := lifecycle.Apply(task, cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Op, err)
	}
	return next
}

func ownerID(t domain.Task) string {
	if t.ActualOwner == nil {
		return ""
	}
	return t.ActualOwner.ID
}

func TestInitialAssignment(t *testing.T) {
	cases := []struct {
		name   string
		owners domain.EntityList
		hold   bool
		status domain.Status
		owner  string
	}{
		{"single user", domain.EntityList{domain.User("bobba")}, false, domain.StatusReserved, "bobba"},
		{"single group", domain.EntityList{domain.Group("Crusaders")}, false, domain.StatusReady, ""},
		{"many users", domain.EntityList{domain.User("bobba"), domain.User("darth")}, false, domain.StatusReady, ""},
		{"none", nil, false, domain.StatusReady, ""},
		{"none held", nil, true, domain.StatusCreated, ""},
		{"single user held", domain.EntityList{domain.User("bobba")}, true, domain.StatusReserved, "bobba"},
		{"same user twice", domain.EntityList{domain.User("bobba"), domain.User("bobba")}, false, domain.StatusReserved, "bobba"},
		{"same group twice", domain.EntityList{domain.Group("Crusaders"), domain.Group("Crusaders")}, false, domain.StatusReady, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := domain.Task{}
			task.PotentialOwners = tc.owners
			got := lifecycle.Initial(task, tc.hold)
			if got.Status != tc.status {
				t.Fatalf("status = %s, want %s", got.Status, tc.status)
			}
			if ownerID(got) != tc.owner {
				t.Fatalf("owner = %q, want %q", ownerID(got), tc.owner)
			}
		})
	}
}

func TestTransitionTable(t *testing.T) {
	ready := newTask(domain.StatusReady, nil, domain.User(bobba.UserID), domain.User(darth.UserID))
	reserved := newTask(domain.StatusReserved, &bobba, domain.User(bobba.UserID), domain.User(darth.UserID))
	inProgress := newTask(domain.StatusInProgress, &bobba, domain.User(bobba.UserID), domain.User(darth.UserID))

	cases := []struct {
		name   string
		task   domain.Task
		cmd    lifecycle.Command
		status domain.Status
		owner  string
	}{
		{"claim ready", ready, lifecycle.Claim(bobba), domain.StatusReserved, bobba.UserID},
		{"start ready", ready, lifecycle.Start(darth), domain.StatusInProgress, darth.UserID},
		{"start reserved", reserved, lifecycle.Start(bobba), domain.StatusInProgress, bobba.UserID},
		{"stop", inProgress, lifecycle.Stop(bobba), domain.StatusReserved, bobba.UserID},
		{"release reserved", reserved, lifecycle.Release(bobba), domain.StatusReady, ""},
		{"release in progress", inProgress, lifecycle.Release(bobba), domain.StatusReady, ""},
		{"suspend ready", ready, lifecycle.Suspend(darth), domain.StatusSuspended, ""},
		{"suspend reserved", reserved, lifecycle.Suspend(bobba), domain.StatusSuspended, bobba.UserID},
		{"skip ready", ready, lifecycle.Skip(bobba), domain.StatusObsolete, ""},
		{"skip reserved", reserved, lifecycle.Skip(bobba), domain.StatusObsolete, bobba.UserID},
		{"delegate ready", ready, lifecycle.Delegate(bobba, domain.User(luke.UserID)), domain.StatusReady, luke.UserID},
		{"delegate reserved", reserved, lifecycle.Delegate(bobba, domain.User(luke.UserID)), domain.StatusReserved, luke.UserID},
		{"forward ready", ready, lifecycle.Forward(bobba, domain.User(luke.UserID)), domain.StatusReady, ""},
		{"forward reserved", reserved, lifecycle.Forward(bobba, domain.User(luke.UserID)), domain.StatusReady, ""},
		{"complete", inProgress, lifecycle.Complete(bobba, nil), domain.StatusCompleted, bobba.UserID},
		{"fail", inProgress, lifecycle.Fail(bobba, nil), domain.StatusFailed, bobba.UserID},
		{"exit ready", ready, lifecycle.Exit(admin), domain.StatusExited, ""},
		{"exit reserved", reserved, lifecycle.Exit(admin), domain.StatusExited, ""},
		{"exit in progress", inProgress, lifecycle.Exit(admin), domain.StatusExited, ""},
		{"admin completes", inProgress, lifecycle.Complete(admin, nil), domain.StatusCompleted, bobba.UserID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mustApply(t, tc.task, tc.cmd)
			if got.Status != tc.status {
				t.Fatalf("status = %s, want %s", got.Status, tc.status)
			}
			if ownerID(got) != tc.owner {
				t.Fatalf("owner = %q, want %q", ownerID(got), tc.owner)
			}
		})
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	ready := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	_ = mustApply(t, ready, lifecycle.Forward(bobba, domain.User(luke.UserID)))
	if ready.Status != domain.StatusReady || len(ready.PotentialOwners) != 1 || ready.PotentialOwners[0].ID != bobba.UserID {
		t.Fatalf("input task changed: %+v", ready)
	}
}

func TestSuspendResumeRestoresState(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusReady, domain.StatusReserved, domain.StatusInProgress} {
		var owner *domain.Actor
		if status != domain.StatusReady {
			owner = &bobba
		}
		task := newTask(status, owner, domain.User(bobba.UserID), domain.User(darth.UserID))
		actor := bobba
		suspended := mustApply(t, task, lifecycle.Suspend(actor))
		if suspended.PreviousStatus == nil || *suspended.PreviousStatus != status {
			t.Fatalf("previous status not recorded for %s", status)
		}
		resumed := mustApply(t, suspended, lifecycle.Resume(actor))
		if resumed.Status != status {
			t.Fatalf("resume from %s gave %s", status, resumed.Status)
		}
		if ownerID(resumed) != ownerID(task) {
			t.Fatalf("owner changed across suspend/resume: %q -> %q", ownerID(task), ownerID(resumed))
		}
		if resumed.PreviousStatus != nil {
			t.Fatalf("previous status should be cleared after resume")
		}
	}
}

func TestForwardRewritesPotentialOwners(t *testing.T) {
	task := newTask(domain.StatusReady, nil, domain.User(bobba.UserID), domain.User(darth.UserID))
	got := mustApply(t, task, lifecycle.Forward(bobba, domain.User(luke.UserID)))
	if got.PotentialOwners.Contains(domain.User(bobba.UserID)) {
		t.Fatalf("forwarding user still a potential owner")
	}
	if !got.PotentialOwners.Contains(domain.User(darth.UserID)) || !got.PotentialOwners.Contains(domain.User(luke.UserID)) {
		t.Fatalf("unexpected potential owners %v", got.PotentialOwners)
	}
}

func TestDelegateAddsTarget(t *testing.T) {
	task := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	got := mustApply(t, task, lifecycle.Delegate(bobba, domain.User(darth.UserID)))
	if !got.PotentialOwners.Contains(domain.User(darth.UserID)) {
		t.Fatalf("delegate target not added")
	}
	_, err := lifecycle.Apply(task, lifecycle.Delegate(bobba, domain.Group("Crusaders")))
	var na lifecycle.NotApplicableError
	if !errors.As(err, &na) {
		t.Fatalf("delegate to group: expected not applicable, got %v", err)
	}
}

func TestPermissionDenied(t *testing.T) {
	ready := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	reserved := newTask(domain.StatusReserved, &bobba, domain.User(bobba.UserID), domain.User(darth.UserID))
	inProgress := newTask(domain.StatusInProgress, &bobba, domain.User(bobba.UserID))

	cases := []struct {
		name string
		task domain.Task
		cmd  lifecycle.Command
	}{
		{"claim by stranger", ready, lifecycle.Claim(luke)},
		{"start by non owner", reserved, lifecycle.Start(darth)},
		{"stop by non owner", inProgress, lifecycle.Stop(darth)},
		{"release by non owner", reserved, lifecycle.Release(darth)},
		{"complete by non owner", inProgress, lifecycle.Complete(darth, nil)},
		{"fail by non owner", inProgress, lifecycle.Fail(darth, nil)},
		{"suspend by non owner", reserved, lifecycle.Suspend(darth)},
		{"skip by non owner", reserved, lifecycle.Skip(darth)},
		{"delegate by potential owner on reserved", reserved, lifecycle.Delegate(darth, domain.User(luke.UserID))},
		{"forward by potential owner on reserved", reserved, lifecycle.Forward(darth, domain.User(luke.UserID))},
		{"exit by owner", reserved, lifecycle.Exit(bobba)},
		{"complete on ready", ready, lifecycle.Complete(bobba, nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lifecycle.Apply(tc.task, tc.cmd)
			var pd auth.PermissionDeniedError
			if !errors.As(err, &pd) {
				t.Fatalf("expected permission denied, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.cmd.Actor.UserID) {
				t.Fatalf("message %q does not name %s", err.Error(), tc.cmd.Actor.UserID)
			}
		})
	}
}

func TestClaimWithGroup(t *testing.T) {
	task := newTask(domain.StatusReady, nil, domain.Group("Crusaders"))
	got := mustApply(t, task, lifecycle.Claim(crusa))
	if got.Status != domain.StatusReserved || ownerID(got) != crusa.UserID {
		t.Fatalf("unexpected result %s %q", got.Status, ownerID(got))
	}
	task.ExcludedOwners = domain.EntityList{domain.User(crusa.UserID)}
	if _, err := lifecycle.Apply(task, lifecycle.Claim(crusa)); err == nil {
		t.Fatalf("excluded owner claimed the task")
	}
}

func TestClaimNoLongerClaimable(t *testing.T) {
	reserved := newTask(domain.StatusReserved, &bobba, domain.User(bobba.UserID), domain.User(darth.UserID))
	_, err := lifecycle.Apply(reserved, lifecycle.Claim(darth))
	var pd auth.PermissionDeniedError
	if !errors.As(err, &pd) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if !strings.Contains(err.Error(), "no longer claimable") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestStatusPrecondition(t *testing.T) {
	reserved := newTask(domain.StatusReserved, &bobba, domain.User(bobba.UserID))
	_, err := lifecycle.Apply(reserved, lifecycle.Complete(bobba, nil))
	var se lifecycle.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected status error, got %v", err)
	}
	if se.RequiredStatus() != domain.StatusInProgress {
		t.Fatalf("required = %s", se.RequiredStatus())
	}

	completed := newTask(domain.StatusCompleted, &bobba, domain.User(bobba.UserID))
	for _, cmd := range []lifecycle.Command{lifecycle.Start(bobba), lifecycle.Suspend(bobba), lifecycle.Exit(admin), lifecycle.Release(bobba)} {
		if _, err := lifecycle.Apply(completed, cmd); !errors.As(err, &se) {
			t.Fatalf("%s on completed: expected status error, got %v", cmd.Op, err)
		}
	}
}

func TestSkipNotSkipable(t *testing.T) {
	task := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	task.Skipable = false
	for _, actor := range []domain.Actor{bobba, luke, admin} {
		_, err := lifecycle.Apply(task, lifecycle.Skip(actor))
		var na lifecycle.NotApplicableError
		if !errors.As(err, &na) {
			t.Fatalf("skip by %s: expected not applicable, got %v", actor.UserID, err)
		}
	}
}

func TestNominate(t *testing.T) {
	created := newTask(domain.StatusCreated, nil)

	got := mustApply(t, created, lifecycle.Nominate(admin, domain.User(bobba.UserID)))
	if got.Status != domain.StatusReserved || ownerID(got) != bobba.UserID {
		t.Fatalf("nominate single user: %s %q", got.Status, ownerID(got))
	}

	got = mustApply(t, created, lifecycle.Nominate(admin, domain.Group("Knights Templer")))
	if got.Status != domain.StatusReady || !got.PotentialOwners.Contains(domain.Group("Knights Templer")) {
		t.Fatalf("nominate group: %s %v", got.Status, got.PotentialOwners)
	}

	got = mustApply(t, created, lifecycle.Nominate(admin, domain.User(bobba.UserID), domain.User(darth.UserID)))
	if got.Status != domain.StatusReady || len(got.PotentialOwners) != 2 {
		t.Fatalf("nominate many: %s %v", got.Status, got.PotentialOwners)
	}

	if _, err := lifecycle.Apply(created, lifecycle.Nominate(admin)); err == nil {
		t.Fatalf("empty nomination accepted")
	}

	_, err := lifecycle.Apply(created, lifecycle.Nominate(darth, domain.User(bobba.UserID)))
	if err == nil || !strings.Contains(err.Error(), darth.UserID) {
		t.Fatalf("non-admin nominate: %v", err)
	}

	ready := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	_, err = lifecycle.Apply(ready, lifecycle.Nominate(darth, domain.User(bobba.UserID)))
	var se lifecycle.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("nominate on ready: expected status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Created") {
		t.Fatalf("message %q does not name Created", err.Error())
	}
}

func TestActivate(t *testing.T) {
	created := newTask(domain.StatusCreated, nil)
	got := mustApply(t, created, lifecycle.Activate(admin))
	if got.Status != domain.StatusReady {
		t.Fatalf("activate: %s", got.Status)
	}

	ready := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	_, err := lifecycle.Apply(ready, lifecycle.Activate(darth))
	if err == nil {
		t.Fatalf("activate on ready accepted")
	}
	msg := err.Error()
	if !strings.Contains(msg, "status") || !strings.Contains(msg, darth.UserID) {
		t.Fatalf("message %q should name the status and the user", msg)
	}

	_, err = lifecycle.Apply(created, lifecycle.Activate(darth))
	var pd auth.PermissionDeniedError
	if !errors.As(err, &pd) {
		t.Fatalf("activate by non-admin: %v", err)
	}
}

func TestRecipients(t *testing.T) {
	task := newTask(domain.StatusReady, nil, domain.User(bobba.UserID))
	got := mustApply(t, task, lifecycle.Register(bobba))
	if !got.Recipients.Contains(domain.User(bobba.UserID)) {
		t.Fatalf("register did not add recipient")
	}
	got = mustApply(t, got, lifecycle.Remove(bobba))
	if got.Recipients.Contains(domain.User(bobba.UserID)) {
		t.Fatalf("remove did not drop recipient")
	}
	_, err := lifecycle.Apply(got, lifecycle.Remove(bobba))
	var na lifecycle.NotApplicableError
	if !errors.As(err, &na) {
		t.Fatalf("remove absent recipient: expected not applicable, got %v", err)
	}
}

func TestCompleteAttachesContent(t *testing.T) {
	task := newTask(domain.StatusInProgress, &bobba, domain.User(bobba.UserID))
	cmd := lifecycle.Complete(bobba, &domain.ContentData{Type: "text", Content: []byte("done")})
	cmd.OutputContentID = 42
	got := mustApply(t, task, cmd)
	if got.Output.ContentID != 42 || got.Output.AccessType != domain.AccessInline || got.Output.Type != "text" {
		t.Fatalf("unexpected output ref %+v", got.Output)
	}

	fail := lifecycle.Fail(bobba, &domain.FaultData{ContentData: domain.ContentData{AccessType: domain.AccessReference}, FaultName: "faultType"})
	fail.FaultContentID = 43
	got = mustApply(t, task, fail)
	if got.Fault.ContentID != 43 || got.FaultName != "faultType" || got.Fault.AccessType != domain.AccessReference {
		t.Fatalf("unexpected fault %+v %q", got.Fault, got.FaultName)
	}
}
