// Package auth implements the authorization gatekeeper: a pure decision
// table consulted before every mutating operation. It has no state of its
// own; callers pass the acting user's role and capability set along with
// the target entity and the operation being attempted.
package auth

import "github.com/meridian-edu/meridian/core"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

var Roles = []Role{RoleAdmin, RoleFaculty, RoleStudent}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return true
	}
	return false
}

// Capability is a fine-grained permission that may be granted to faculty
// members. Admins hold every capability implicitly; students hold none.
type Capability string

const (
	CapManageStudents       Capability = "manage_students"
	CapResetStudentPassword Capability = "reset_student_password"
	CapManageFaculty        Capability = "manage_faculty"
	CapResetFacultyPassword Capability = "reset_faculty_password"
	CapReviewCertificates   Capability = "review_certificates"
	CapCoordinateHouse      Capability = "coordinate_house"
	CapAllocateEvents       Capability = "allocate_events"
)

var Capabilities = []Capability{
	CapManageStudents,
	CapResetStudentPassword,
	CapManageFaculty,
	CapResetFacultyPassword,
	CapReviewCertificates,
	CapCoordinateHouse,
	CapAllocateEvents,
}

func (c Capability) IsValid() bool {
	for _, cap := range Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

type Operation string

const (
	OpCreateUser        Operation = "user.create"
	OpUpdateUser        Operation = "user.update"
	OpDeleteUser        Operation = "user.delete"
	OpResetPassword     Operation = "user.reset_password"
	OpReviewCertificate Operation = "certificate.review"
	OpUpdateCertificate Operation = "certificate.update"
	OpDeleteCertificate Operation = "certificate.delete"
	OpListCertificates  Operation = "certificate.list"
	OpAllocateEvent     Operation = "event.allocate"
)

type (
	// Actor is the user attempting an operation.
	Actor struct {
		ID           string
		Role         Role
		Capabilities []Capability
	}

	// Target identifies the entity acted upon. For certificate operations
	// the target is the certificate's owner; operations without a user
	// target (event allocation) leave it zero-valued.
	Target struct {
		ID   string
		Role Role
	}
)

func (a Actor) Can(cap Capability) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// requiredCaps maps (operation, target role) to the capability a faculty
// actor must hold. Absent entries mean faculty may never perform the
// operation on that target.
var requiredCaps = map[Operation]map[Role]Capability{
	OpCreateUser: {
		RoleStudent: CapManageStudents,
		RoleFaculty: CapManageFaculty,
	},
	OpUpdateUser: {
		RoleStudent: CapManageStudents,
		RoleFaculty: CapManageFaculty,
	},
	OpDeleteUser: {
		RoleStudent: CapManageStudents,
		RoleFaculty: CapManageFaculty,
	},
	OpResetPassword: {
		RoleStudent: CapResetStudentPassword,
		RoleFaculty: CapResetFacultyPassword,
	},
	OpReviewCertificate: {
		RoleStudent: CapReviewCertificates,
	},
	OpUpdateCertificate: {
		RoleStudent: CapReviewCertificates,
	},
	OpDeleteCertificate: {
		RoleStudent: CapReviewCertificates,
	},
	OpListCertificates: {
		RoleStudent: CapReviewCertificates,
	},
	OpAllocateEvent: {},
}

// selfServiceOps may always be performed by an actor on themselves or on
// entities they own, regardless of role and capabilities.
var selfServiceOps = map[Operation]bool{
	OpUpdateUser:        true,
	OpUpdateCertificate: true,
	OpDeleteCertificate: true,
	OpListCertificates:  true,
}

// Decide returns nil when the actor may perform op on target, or a
// core.AuthorizationError otherwise. It is pure and side-effect-free.
func Decide(actor Actor, target Target, op Operation) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	if selfServiceOps[op] && actor.ID != "" && actor.ID == target.ID {
		return nil
	}
	if actor.Role == RoleFaculty {
		if cap, ok := requiredCaps[op][target.Role]; ok && actor.Can(cap) {
			return nil
		}
		if op == OpAllocateEvent && actor.Can(CapAllocateEvents) {
			return nil
		}
	}
	return core.NewAuthorizationError(actor.ID, target.ID, string(op))
}
