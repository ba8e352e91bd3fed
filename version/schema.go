package version

import (
	"github.com/Masterminds/semver/v3"

	"github.com/openfutures/tickd/errors"
)

// SchemaConstraint is the range of config schema versions this binary
// accepts: anything in the same major line up to and including its own.
const SchemaConstraint = "^1.0.0"

// CompatibleSchema reports whether a config file's schema_version can
// be loaded by this binary. An empty version is treated as pre-schema
// and accepted (defaults fill the gaps); a version outside the major
// line is a hard error so a downgrade never half-reads a newer layout.
func CompatibleSchema(schemaVersion string) error {
	if schemaVersion == "" {
		return nil
	}

	v, err := semver.NewVersion(schemaVersion)
	if err != nil {
		return errors.Wrapf(err, "parse schema_version %q", schemaVersion)
	}

	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return errors.Wrap(err, "parse schema constraint")
	}

	if !c.Check(v) {
		return errors.Newf("config schema_version %s is outside the supported range %s", schemaVersion, SchemaConstraint)
	}
	return nil
}
