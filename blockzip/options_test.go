package blockzip

import (
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestOptionsParallelismDefaultsToGOMAXPROCS(t *testing.T) {
	var o Options
	assert.Equal(t, runtime.GOMAXPROCS(0), o.parallelism())
}

func TestOptionsParallelismHonorsOverride(t *testing.T) {
	o := Options{Parallelism: 3}
	assert.Equal(t, 3, o.parallelism())
}

func TestOptionsLoggerDefaultsToStandardLogger(t *testing.T) {
	var o Options
	assert.Equal(t, logrus.StandardLogger(), o.logger())
}

func TestOptionsLoggerHonorsOverride(t *testing.T) {
	custom := logrus.New()
	o := Options{Logger: custom}
	assert.Same(t, custom, o.logger())
}
