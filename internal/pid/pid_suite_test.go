package pid_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPID(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PID Suite")
}
