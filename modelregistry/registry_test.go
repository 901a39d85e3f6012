package modelregistry

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spikesim/statusdict"
)

type fakeModel struct {
	Value float64
}

func (m *fakeModel) SetStatus(dict statusdict.Dict) error {
	if v, ok := dict.GetFloat("value"); ok {
		m.Value = v
	}
	return nil
}

type bareModel struct {
	X int
}

var _ = Describe("Registry", func() {
	var r *Registry

	BeforeEach(func() {
		r = New()
	})

	It("should assign sequential ids on Register", func() {
		id1, err1 := r.Register("a", &fakeModel{})
		id2, err2 := r.Register("b", &fakeModel{})

		Expect(err1).NotTo(HaveOccurred())
		Expect(err2).NotTo(HaveOccurred())
		Expect(id1).To(Equal(0))
		Expect(id2).To(Equal(1))
		Expect(r.NumModels()).To(Equal(2))
	})

	It("should resolve a registered name to its id", func() {
		id, err := r.Register("neuron_a", &fakeModel{})
		Expect(err).NotTo(HaveOccurred())

		got, ok := r.ID("neuron_a")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(id))
	})

	It("should report false for an unregistered name", func() {
		_, ok := r.ID("missing")
		Expect(ok).To(BeFalse())
	})

	It("should return a NamingConflict error when registering a duplicate name", func() {
		_, err := r.Register("dup", &fakeModel{})
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Register("dup", &fakeModel{})
		Expect(err).To(HaveOccurred())

		var sdErr *statusdict.Error
		Expect(errors.As(err, &sdErr)).To(BeTrue())
		Expect(sdErr.Kind).To(Equal(statusdict.KindNamingConflict))
	})

	It("should return the name registered for a model id", func() {
		id, err := r.Register("neuron_a", &fakeModel{})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Name(id)).To(Equal("neuron_a"))
	})

	It("should deep-copy a prototype and apply overrides", func() {
		src := &fakeModel{Value: 1.0}
		sourceID, err := r.Register("base", src)
		Expect(err).NotTo(HaveOccurred())

		newID, err := r.CopyModel(sourceID, "derived", statusdict.Dict{"value": 5.0})
		Expect(err).NotTo(HaveOccurred())

		clone := r.Prototype(newID).(*fakeModel)
		Expect(clone.Value).To(Equal(5.0))
		Expect(src.Value).To(Equal(1.0)) // original untouched
		Expect(r.Name(newID)).To(Equal("derived"))
	})

	It("should clone without applying overrides when none are given", func() {
		src := &fakeModel{Value: 3.0}
		sourceID, err := r.Register("base", src)
		Expect(err).NotTo(HaveOccurred())

		newID, err := r.CopyModel(sourceID, "derived", nil)
		Expect(err).NotTo(HaveOccurred())

		clone := r.Prototype(newID).(*fakeModel)
		Expect(clone.Value).To(Equal(3.0))
	})

	It("should error when overrides are given for a prototype that does not accept status", func() {
		sourceID, err := r.Register("bare", &bareModel{X: 1})
		Expect(err).NotTo(HaveOccurred())

		_, err = r.CopyModel(sourceID, "derived", statusdict.Dict{"x": 2})
		Expect(err).To(HaveOccurred())
	})

	It("should error when the prototype is not a pointer", func() {
		sourceID, err := r.Register("value-type", fakeModel{Value: 1.0})
		Expect(err).NotTo(HaveOccurred())

		_, err = r.CopyModel(sourceID, "derived", nil)
		Expect(err).To(HaveOccurred())
	})

	It("should propagate CopyModel's own Register conflict when newName is already taken", func() {
		_, err := r.Register("base", &fakeModel{})
		Expect(err).NotTo(HaveOccurred())
		sourceID, err := r.Register("other", &fakeModel{})
		Expect(err).NotTo(HaveOccurred())

		_, err = r.CopyModel(sourceID, "base", nil)
		Expect(err).To(HaveOccurred())

		var sdErr *statusdict.Error
		Expect(errors.As(err, &sdErr)).To(BeTrue())
		Expect(sdErr.Kind).To(Equal(statusdict.KindNamingConflict))
	})
})
