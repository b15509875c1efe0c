package telemetry

import "math"

// Analysis helpers operating on assembled (usually downsampled) tables.
// They assume cardinal-only input unless noted; boolean cells pass
// through untouched.

// RemoveOutliers masks, column-wise, every float observation further
// than three standard deviations from that column's mean. Masked cells
// become explicit nulls so their timestamps stay in the table.
func RemoveOutliers(t *Table) *Table {
	out := NewTable(t.Columns())
	for _, col := range t.Columns() {
		ts, values := t.Column(col)
		mean, std := meanStd(values)
		for i, v := range values {
			if f, ok := v.Float(); ok && std > 0 && math.Abs(f-mean) > 3*std {
				out.Set(ts[i], col, Null())
				continue
			}
			out.Set(ts[i], col, v)
		}
	}
	return out
}

func meanStd(values []Value) (mean, std float64) {
	var sum float64
	var n int
	for _, v := range values {
		if f, ok := v.Float(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		if f, ok := v.Float(); ok {
			sq += (f - mean) * (f - mean)
		}
	}
	// Sample standard deviation, matching the usual estimator.
	std = math.Sqrt(sq / float64(n-1))
	return mean, std
}

// SmoothedAverage smooths each column with an exponentially weighted
// mean. halflife is the number of rows after which an observation's
// weight has decayed to one half. Rows before a column's first
// observation stay "no observation"; nulls keep decaying the weights
// without contributing.
func SmoothedAverage(halflife float64, t *Table) *Table {
	decay := math.Pow(0.5, 1/halflife)
	out := NewTable(t.Columns())
	index := t.Index()
	for _, col := range t.Columns() {
		var num, den float64
		for _, ts := range index {
			num *= decay
			den *= decay
			v, observed := t.At(ts, col)
			if f, ok := v.Float(); ok {
				num += f
				den++
			}
			if observed && den > 0 {
				out.Set(ts, col, Float(num/den))
			}
		}
	}
	return out
}

// ColumnSum produces a single-column table summing the selected columns
// row-wise. A row where any addend is missing or null yields a null in
// the sum column. The column is named "sum" unless a title is given.
func ColumnSum(t *Table, columns []string, title string) *Table {
	if title == "" {
		title = "sum"
	}
	out := NewTable([]string{title})
	for _, ts := range t.Index() {
		var sum float64
		complete := true
		for _, col := range columns {
			v, ok := t.At(ts, col)
			if !ok {
				complete = false
				break
			}
			f, ok := v.Float()
			if !ok {
				complete = false
				break
			}
			sum += f
		}
		if complete {
			out.Set(ts, title, Float(sum))
		} else {
			out.Set(ts, title, Null())
		}
	}
	return out
}

const specificGasConstantWaterVapor = 461.5

// saturatedVaporPressure estimates the saturated vapor pressure in kPa
// from a temperature in degrees Celsius, by Tetens' equation.
func saturatedVaporPressure(celsius float64) float64 {
	return 0.61078 * math.Exp(17.27*celsius/(celsius+237.3))
}

// AbsoluteHumidity derives an absolute humidity column (g/m3) from a
// temperature column (degrees Celsius) and a relative humidity column
// (percentage points, so 62.5 for 62.5%). Rows missing either input
// stay "no observation".
func AbsoluteHumidity(t *Table, temperatureCol, humidityCol, title string) *Table {
	if title == "" {
		title = "absolute_humidity"
	}
	out := NewTable([]string{title})
	for _, ts := range t.Index() {
		tempV, ok := t.At(ts, temperatureCol)
		if !ok {
			continue
		}
		humV, ok := t.At(ts, humidityCol)
		if !ok {
			continue
		}
		temp, ok := tempV.Float()
		if !ok {
			continue
		}
		hum, ok := humV.Float()
		if !ok {
			continue
		}
		kelvin := temp + 273.15
		vaporPa := 1000 * saturatedVaporPressure(temp) * (hum / 100)
		out.Set(ts, title, Float(1000*vaporPa/(specificGasConstantWaterVapor*kelvin)))
	}
	return out
}
