package physics

import (
	"fmt"
	"sort"

	"github.com/san-kum/pidctl/internal/dynamo"
)

var plants = map[string]func() dynamo.System{
	"pendulum":    func() dynamo.System { return NewPendulum() },
	"spring_mass": func() dynamo.System { return NewSpringMass() },
	"thermal":     func() dynamo.System { return NewThermal() },
	"motor":       func() dynamo.System { return NewMotor() },
}

// Get returns a new plant with default parameters.
func Get(name string) (dynamo.System, error) {
	fn, ok := plants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownPlant, name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(plants))
	for name := range plants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
