package catalog

import "github.com/tuannm99/sqlmission/internal/record"

// Seed returns a fresh copy of the built-in mission dataset:
// users, products and orders linked through orders.user_id / orders.product_id.
func Seed() *TableSet {
	return NewTableSet(
		build("users",
			[]string{"id", "name", "age", "job", "department", "salary"},
			[][]record.Value{
				{1, "Alice", 28, "Engineer", "IT", 7500000},
				{2, "Bob", 34, "Designer", "Creative", 6000000},
				{3, "Charlie", 22, "Engineer", "IT", 5500000},
				{4, "David", 45, "Manager", "IT", 12000000},
				{5, "Eve", 29, "Engineer", "IT", 8000000},
				{6, "Frank", 31, "Designer", "Creative", 6500000},
				{7, "Grace", 26, "Analyst", "Finance", 7000000},
				{8, "Hank", 38, "Manager", "Finance", 11000000},
			}),
		build("products",
			[]string{"id", "name", "price", "stock", "category"},
			[][]record.Value{
				{101, "Laptop", 15000000, 50, "Electronics"},
				{102, "Mouse", 250000, 200, "Electronics"},
				{103, "Keyboard", 800000, 150, "Electronics"},
				{104, "Monitor", 3500000, 80, "Electronics"},
				{105, "Headphones", 1500000, 60, "Electronics"},
				{106, "Webcam", 900000, 40, "Electronics"},
				{107, "Meja Kerja", 2000000, 30, "Furniture"},
				{108, "Kursi Gaming", 3000000, 25, "Furniture"},
			}),
		build("orders",
			[]string{"id", "user_id", "product_id", "quantity", "date", "status"},
			[][]record.Value{
				{1001, 1, 101, 1, "2023-01-15", "completed"},
				{1002, 2, 102, 2, "2023-01-16", "completed"},
				{1003, 1, 105, 1, "2023-01-17", "pending"},
				{1004, 3, 103, 1, "2023-01-18", "completed"},
				{1005, 2, 104, 2, "2023-01-19", "completed"},
				{1006, 4, 101, 1, "2023-01-20", "pending"},
				{1007, 5, 107, 1, "2023-01-21", "completed"},
				{1008, 1, 108, 1, "2023-01-22", "completed"},
			}),
	)
}

func build(name string, cols []string, rows [][]record.Value) *Table {
	t := &Table{Name: name, Columns: cols, Rows: make([]record.Row, 0, len(rows))}
	for _, vals := range rows {
		t.Rows = append(t.Rows, record.NewRow(cols, vals))
	}
	return t
}
