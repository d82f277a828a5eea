package dockerfile

import "errors"

var ErrRequirementsMissing = errors.New("requirements.txt not found in build context")
