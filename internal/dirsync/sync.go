package dirsync

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
)

// Directory abstracts the read side of the directory service so the
// reconciler can be tested without a live server.
type Directory interface {
	// Fetch returns department and person candidate entries.
	Fetch() (departments, people []*ldap.Entry, err error)
}

// Result summarizes a full sync pass. Per-entry failures are collected in
// Errors and never abort the batch.
type Result struct {
	DepartmentsCreated    int
	DepartmentsUpdated    int
	DepartmentsSkipped    int
	IdentitiesCreated     int
	IdentitiesUpdated     int
	IdentitiesSkipped     int
	IdentitiesDeactivated int
	Errors                []string
}

// Reconciler consumes directory entries and upserts the local department and
// identity tables. It is the sole writer of directory-sourced fields.
type Reconciler struct {
	db         *gorm.DB
	directory  Directory
	superAdmin string
}

// NewReconciler creates a reconciler. superAdmin is the distinguished
// username granted staff and superuser flags unconditionally on every sync.
func NewReconciler(db *gorm.DB, directory Directory, superAdmin string) *Reconciler {
	return &Reconciler{
		db:         db,
		directory:  directory,
		superAdmin: superAdmin,
	}
}

// SyncAll runs a full sync in two strictly ordered phases: departments, then
// identities, because identity rows reference department ids that must
// already exist. Finally, active identities absent from the directory are
// deactivated, except superusers, which are preserved as a safety net
// against a directory outage locking out administrators.
func (r *Reconciler) SyncAll() (*Result, error) {
	departments, people, err := r.directory.Fetch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	result := &Result{}

	r.syncDepartments(departments, result)

	seen := r.syncIdentities(people, result)

	r.deactivateMissing(seen, result)

	log.Info().
		Int("departments_created", result.DepartmentsCreated).
		Int("departments_updated", result.DepartmentsUpdated).
		Int("identities_created", result.IdentitiesCreated).
		Int("identities_updated", result.IdentitiesUpdated).
		Int("identities_deactivated", result.IdentitiesDeactivated).
		Int("errors", len(result.Errors)).
		Msg("directory sync finished")

	return result, nil
}

// syncDepartments upserts departments by their external id. The id comes
// from the cn attribute and must parse as an integer; the name from ou.
// Malformed entries are skipped and counted, not fatal.
func (r *Reconciler) syncDepartments(entries []*ldap.Entry, result *Result) {
	for _, entry := range entries {
		id, err := strconv.ParseInt(entry.GetAttributeValue("cn"), 10, 64)
		if err != nil {
			log.Warn().Str("dn", entry.DN).Msg("department cn is not numeric, skipping")
			result.DepartmentsSkipped++

			continue
		}

		name := entry.GetAttributeValue("ou")
		if name == "" {
			log.Debug().Str("dn", entry.DN).Msg("department entry has no name, skipping")
			result.DepartmentsSkipped++

			continue
		}

		var dept models.Department

		err = r.db.First(&dept, "id = ?", id).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			dept = models.Department{ID: id, Name: name}
			if errCreate := r.db.Create(&dept).Error; errCreate != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("department %d: %v", id, errCreate))
				continue
			}

			result.DepartmentsCreated++
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("department %d: %v", id, err))
		case dept.Name != name:
			dept.Name = name
			if errSave := r.db.Save(&dept).Error; errSave != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("department %d: %v", id, errSave))
				continue
			}

			result.DepartmentsUpdated++
		}
	}
}

// syncIdentities upserts identities by username and returns the set of
// usernames seen in the directory. Directory presence implies active.
func (r *Reconciler) syncIdentities(entries []*ldap.Entry, result *Result) map[string]struct{} {
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		username := entry.GetAttributeValue("cn")
		if username == "" {
			log.Debug().Str("dn", entry.DN).Msg("person entry has no username, skipping")
			result.IdentitiesSkipped++

			continue
		}

		seen[username] = struct{}{}

		if err := r.upsertIdentity(username, entry, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("identity %s: %v", username, err))
		}
	}

	return seen
}

// upsertIdentity creates or updates one identity row from a directory entry.
// Rows are only written when a field actually changes, so a sync against
// unchanged directory content reports zero updates.
func (r *Reconciler) upsertIdentity(username string, entry *ldap.Entry, result *Result) error {
	desired := models.Identity{
		Username:       username,
		DisplayName:    entry.GetAttributeValue("sn"),
		Email:          entry.GetAttributeValue("mail"),
		EmployeeNumber: entry.GetAttributeValue("employeeNumber"),
		Active:         true,
		DepartmentID:   r.resolveDepartment(username, entry.GetAttributeValue("departmentNumber")),
	}

	if username == r.superAdmin {
		desired.Staff = true
		desired.Superuser = true
	}

	var existing models.Identity

	err := r.db.First(&existing, "username = ?", username).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if errCreate := r.db.Create(&desired).Error; errCreate != nil {
			return errCreate
		}

		result.IdentitiesCreated++

		return nil
	}

	if err != nil {
		return err
	}

	if !identityChanged(&existing, &desired) {
		return nil
	}

	existing.DisplayName = desired.DisplayName
	existing.Email = desired.Email
	existing.EmployeeNumber = desired.EmployeeNumber
	existing.Active = true
	existing.DepartmentID = desired.DepartmentID

	if desired.Staff {
		existing.Staff = true
	}

	if desired.Superuser {
		existing.Superuser = true
	}

	if errSave := r.db.Save(&existing).Error; errSave != nil {
		return errSave
	}

	result.IdentitiesUpdated++

	return nil
}

// resolveDepartment maps a departmentNumber attribute to a local department
// id. Unknown or malformed references resolve to nil with a warning rather
// than failing the batch.
func (r *Reconciler) resolveDepartment(username, departmentNumber string) *int64 {
	if departmentNumber == "" {
		return nil
	}

	id, err := strconv.ParseInt(departmentNumber, 10, 64)
	if err != nil {
		log.Warn().Str("username", username).Str("department_number", departmentNumber).
			Msg("departmentNumber is not numeric")

		return nil
	}

	var dept models.Department
	if err = r.db.First(&dept, "id = ?", id).Error; err != nil {
		log.Warn().Str("username", username).Int64("department_id", id).
			Msg("referenced department not yet synced, leaving reference unset")

		return nil
	}

	return &id
}

// identityChanged reports whether the stored row differs from the desired
// directory state.
func identityChanged(existing, desired *models.Identity) bool {
	if existing.DisplayName != desired.DisplayName ||
		existing.Email != desired.Email ||
		existing.EmployeeNumber != desired.EmployeeNumber ||
		!existing.Active {
		return true
	}

	if (existing.DepartmentID == nil) != (desired.DepartmentID == nil) {
		return true
	}

	if existing.DepartmentID != nil && desired.DepartmentID != nil &&
		*existing.DepartmentID != *desired.DepartmentID {
		return true
	}

	// Flags are only ever promoted, never revoked, by a sync.
	if desired.Staff && !existing.Staff {
		return true
	}

	if desired.Superuser && !existing.Superuser {
		return true
	}

	return false
}

// deactivateMissing flips Active off for identities absent from the seen
// set. Superusers are exempt.
func (r *Reconciler) deactivateMissing(seen map[string]struct{}, result *Result) {
	var active []models.Identity
	if err := r.db.Where("active = ?", true).Find(&active).Error; err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing active identities: %v", err))
		return
	}

	for i := range active {
		identity := &active[i]

		if _, ok := seen[identity.Username]; ok {
			continue
		}

		if identity.Superuser {
			continue
		}

		identity.Active = false
		if err := r.db.Save(identity).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("deactivating %s: %v", identity.Username, err))
			continue
		}

		result.IdentitiesDeactivated++

		log.Info().Str("username", identity.Username).Msg("deactivated identity absent from directory")
	}
}
