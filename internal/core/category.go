package core

// Category is one of the fixed classification buckets. The set is
// static: the categorizer assigns exactly one per transaction and the
// aggregator reports a subtotal for every bucket each period.
type Category string

const (
	CategorySales       Category = "Sales / Revenue"
	CategorySuppliers   Category = "Suppliers"
	CategoryPayroll     Category = "Payroll"
	CategoryRent        Category = "Rent"
	CategoryAccounting  Category = "Accounting"
	CategoryFees        Category = "Fees"
	CategoryInvestments Category = "Investments / Yield"
	CategoryOther       Category = "Other"
)

// Categories lists every fixed category in report order.
func Categories() []Category {
	return []Category{
		CategorySales,
		CategorySuppliers,
		CategoryPayroll,
		CategoryRent,
		CategoryAccounting,
		CategoryFees,
		CategoryInvestments,
		CategoryOther,
	}
}

// ValidCategory reports whether c names one of the fixed buckets.
func ValidCategory(c Category) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}
