package auth

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
)

func TestDecide(t *testing.T) {
	admin := Actor{ID: "a1", Role: RoleAdmin}
	faculty := func(caps ...Capability) Actor {
		return Actor{ID: "f1", Role: RoleFaculty, Capabilities: caps}
	}
	student := Actor{ID: "s1", Role: RoleStudent}

	studentTarget := Target{ID: "s2", Role: RoleStudent}
	facultyTarget := Target{ID: "f2", Role: RoleFaculty}

	tests := []struct {
		name   string
		actor  Actor
		target Target
		op     Operation
		allow  bool
	}{
		{name: "admin may do anything", actor: admin, target: facultyTarget, op: OpDeleteUser, allow: true},
		{name: "admin may allocate events", actor: admin, target: Target{}, op: OpAllocateEvent, allow: true},

		{name: "faculty with manage_students may update student", actor: faculty(CapManageStudents), target: studentTarget, op: OpUpdateUser, allow: true},
		{name: "faculty without caps may not update student", actor: faculty(), target: studentTarget, op: OpUpdateUser, allow: false},
		{name: "faculty with manage_students may not update faculty", actor: faculty(CapManageStudents), target: facultyTarget, op: OpUpdateUser, allow: false},
		{name: "faculty with manage_faculty may update faculty", actor: faculty(CapManageFaculty), target: facultyTarget, op: OpUpdateUser, allow: true},
		{name: "faculty with reset_student_password may reset student", actor: faculty(CapResetStudentPassword), target: studentTarget, op: OpResetPassword, allow: true},
		{name: "faculty with manage_students may not reset student password", actor: faculty(CapManageStudents), target: studentTarget, op: OpResetPassword, allow: false},
		{name: "faculty with review_certificates may review student certificate", actor: faculty(CapReviewCertificates), target: studentTarget, op: OpReviewCertificate, allow: true},
		{name: "faculty without review_certificates may not review", actor: faculty(CapManageStudents), target: studentTarget, op: OpReviewCertificate, allow: false},
		{name: "faculty with allocate_events may allocate", actor: faculty(CapAllocateEvents), target: Target{}, op: OpAllocateEvent, allow: true},
		{name: "faculty without allocate_events may not allocate", actor: faculty(CapReviewCertificates), target: Target{}, op: OpAllocateEvent, allow: false},

		{name: "student may not update another user", actor: student, target: studentTarget, op: OpUpdateUser, allow: false},
		{name: "student may not review certificates", actor: student, target: studentTarget, op: OpReviewCertificate, allow: false},
		{name: "student may not allocate events", actor: student, target: Target{}, op: OpAllocateEvent, allow: false},

		{name: "self update always allowed", actor: student, target: Target{ID: "s1", Role: RoleStudent}, op: OpUpdateUser, allow: true},
		{name: "self certificate update allowed", actor: student, target: Target{ID: "s1", Role: RoleStudent}, op: OpUpdateCertificate, allow: true},
		{name: "self rule does not cover reset password", actor: faculty(), target: Target{ID: "f1", Role: RoleFaculty}, op: OpResetPassword, allow: false},
		{name: "self rule does not cover review", actor: student, target: Target{ID: "s1", Role: RoleStudent}, op: OpReviewCertificate, allow: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decide(tt.actor, tt.target, tt.op)
			if tt.allow {
				if err != nil {
					t.Errorf("Decide() = %v; want allow", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Decide() = allow; want deny")
			}
			authErr, ok := errors.Cause(err).(*core.AuthorizationError)
			if !ok {
				t.Fatalf("Decide() error type = %T; want *core.AuthorizationError", err)
			}
			if authErr.ActorID != tt.actor.ID {
				t.Errorf("AuthorizationError.ActorID = %q; want %q", authErr.ActorID, tt.actor.ID)
			}
			if authErr.Op != string(tt.op) {
				t.Errorf("AuthorizationError.Op = %q; want %q", authErr.Op, tt.op)
			}
		})
	}
}

func TestActorCan(t *testing.T) {
	actor := Actor{Role: RoleFaculty, Capabilities: []Capability{CapManageStudents, CapReviewCertificates}}
	if !actor.Can(CapManageStudents) {
		t.Error("Can(manage_students) = false; want true")
	}
	if actor.Can(CapAllocateEvents) {
		t.Error("Can(allocate_events) = true; want false")
	}
}
