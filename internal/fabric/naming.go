package fabric

import "fmt"

// DiskName returns the name of the per-controller disk for a namespace and
// whether that disk should be hidden. With an aggregate disk on the head the
// per-controller disk is a path only: it gets a controller-qualified name
// and stays out of sight. Without multipath the name follows the controller
// instance, so the same namespace shows up once per controller.
func DiskName(multipath bool, subsys *Subsystem, ctrl *Controller, headInstance int, headHasDisk bool) (string, bool) {
	switch {
	case !multipath:
		return fmt.Sprintf("nvme%dn%d", ctrl.Instance(), headInstance), false
	case headHasDisk:
		return fmt.Sprintf("nvme%dc%dn%d", subsys.Instance(), ctrl.CntlID(), headInstance), true
	default:
		return fmt.Sprintf("nvme%dn%d", subsys.Instance(), headInstance), false
	}
}
