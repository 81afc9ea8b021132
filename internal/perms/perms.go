// Package perms resolves the identity the daemon itself runs as. No other
// package in this module calls it; attributes are taken from the host's
// stat results as they are.
package perms

import (
	"os/user"
	"strconv"
)

// MyUserAndGroup returns the uid and gid of the running process.
func MyUserAndGroup() (uid uint32, gid uint32, err error) {
	u, err := user.Current()
	if err != nil {
		return 0, 0, err
	}

	uidN, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, err
	}

	gidN, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, err
	}

	return uint32(uidN), uint32(gidN), nil
}
