// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTableBasicOperations(t *testing.T) {
	Convey("Given a new epoch table with 4 slots", t, func() {
		tbl := NewTable(4)

		Convey("Initially MinActive is Inactive", func() {
			So(tbl.MinActive(), ShouldEqual, Inactive)
		})

		Convey("When one guard publishes epoch 10", func() {
			g, err := tbl.Register()
			So(err, ShouldBeNil)
			g.Publish(10)

			Convey("Then MinActive is 10", func() {
				So(tbl.MinActive(), ShouldEqual, uint64(10))
			})

			Convey("When a second guard publishes epoch 5", func() {
				g2, err := tbl.Register()
				So(err, ShouldBeNil)
				g2.Publish(5)

				Convey("Then MinActive is 5", func() {
					So(tbl.MinActive(), ShouldEqual, uint64(5))
				})

				Convey("When the lower guard is unregistered", func() {
					tbl.Unregister(g2)

					Convey("Then MinActive reverts to 10", func() {
						So(tbl.MinActive(), ShouldEqual, uint64(10))
					})
				})
			})

			Convey("When the guard publishes Inactive", func() {
				g.Publish(Inactive)

				Convey("Then MinActive is Inactive again", func() {
					So(tbl.MinActive(), ShouldEqual, Inactive)
				})
			})
		})
	})
}

func TestTableExhaustion(t *testing.T) {
	Convey("Given a table with 2 slots", t, func() {
		tbl := NewTable(2)

		Convey("When both slots are registered", func() {
			_, err1 := tbl.Register()
			_, err2 := tbl.Register()
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)

			Convey("Then a third Register fails with ErrTableFull", func() {
				_, err3 := tbl.Register()
				So(err3, ShouldEqual, ErrTableFull)
			})
		})
	})
}

func TestTableRecyclesSlots(t *testing.T) {
	Convey("Given a table with 1 slot", t, func() {
		tbl := NewTable(1)

		Convey("When a guard registers, unregisters, and another registers", func() {
			g1, err := tbl.Register()
			So(err, ShouldBeNil)
			idx1 := g1.Index()
			tbl.Unregister(g1)

			g2, err := tbl.Register()
			So(err, ShouldBeNil)

			Convey("Then the second guard reuses the freed index", func() {
				So(g2.Index(), ShouldEqual, idx1)
			})
		})
	})
}

func TestTableConcurrentRegistration(t *testing.T) {
	Convey("Given a table sized for many concurrent participants", t, func() {
		const n = 32
		tbl := NewTable(n)

		Convey("When all slots register and publish concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(e uint64) {
					defer wg.Done()
					g, err := tbl.Register()
					if err != nil {
						return
					}
					g.Publish(e)
				}(uint64(i))
			}
			wg.Wait()

			Convey("Then MinActive reflects the smallest published epoch", func() {
				So(tbl.MinActive(), ShouldEqual, uint64(0))
			})
		})
	})
}
