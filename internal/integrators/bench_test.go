package integrators

import (
	"testing"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/models"
)

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := models.NewKinematic()
	x := dynamo.State{0, 0, 0}
	u := dynamo.Control{1, 0.2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := models.NewKinematic()
	x := dynamo.State{0, 0, 0}
	u := dynamo.Control{1, 0.2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkRK4StepJacobian(b *testing.B) {
	integrator := NewRK4()
	dyn := models.NewKinematic()
	x := dynamo.State{0.1, 0.2, 0.3}
	u := dynamo.Control{1, 0.2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		integrator.StepJacobian(dyn, x, u, 0.01)
	}
}
